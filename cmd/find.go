// Copyright 2024 Statbase Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/statbase/etl/catalog"
)

// NewFindCommand returns a command that queries the catalog index.
func NewFindCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		indexFile  string
		catalogDir string
		variables  bool
		reindex    bool
	)
	findCommand := &cobra.Command{
		Use:   "find [query]",
		Short: "find - search tables and variables in the catalog index",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) > 0 {
				query = args[0]
			}
			ix, err := catalog.OpenIndex(indexFile)
			if err != nil {
				return err
			}
			defer ix.Close()
			if reindex {
				if err := ix.Reindex(catalog.NewLocal(catalogDir)); err != nil {
					return err
				}
			}
			var rows []catalog.IndexRow
			if variables {
				rows, err = ix.FindVariables(query)
			} else {
				rows, err = ix.FindTables(query)
			}
			if err != nil {
				return err
			}
			for _, row := range rows {
				if variables {
					fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", row.Dataset, row.Table, row.Variable, row.Title)
				} else {
					fmt.Fprintf(stdout, "%s\t%s\n", row.Dataset, row.Table)
				}
			}
			return nil
		},
	}
	flags := findCommand.Flags()
	flags.StringVar(&indexFile, "index", "data/catalog.db", "Bolt file holding the catalog index.")
	flags.StringVarP(&catalogDir, "catalog", "c", "data/catalog", "Root of the local catalog, used with --reindex.")
	flags.BoolVarP(&variables, "variables", "v", false, "Search variables instead of tables.")
	flags.BoolVarP(&reindex, "reindex", "r", false, "Rebuild the index from the catalog before searching.")
	return findCommand
}

func init() {
	subcommandFns["find"] = NewFindCommand
}
