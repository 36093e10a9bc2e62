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
	"github.com/statbase/etl/steps"
)

// NewGcCommand returns a command that removes local datasets no step in the
// DAG produces anymore.
func NewGcCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		catalogDir string
		dagFile    string
		dryRun     bool
	)
	gcCommand := &cobra.Command{
		Use:   "gc",
		Short: "gc - drop local datasets no longer in the DAG",
		RunE: func(cmd *cobra.Command, args []string) error {
			dag, err := steps.LoadDAG(dagFile)
			if err != nil {
				return err
			}
			wanted := map[string]struct{}{}
			for _, step := range dag.All() {
				u, err := steps.ParseURI(step)
				if err != nil {
					return err
				}
				if u.Kind != steps.KindData {
					continue
				}
				wanted[u.Channel+"/"+u.Namespace+"/"+u.Version+"/"+u.Name] = struct{}{}
			}
			cat := catalog.NewLocal(catalogDir)
			have, err := cat.List()
			if err != nil {
				return err
			}
			for _, uri := range have {
				if _, ok := wanted[uri]; ok {
					continue
				}
				if dryRun {
					fmt.Fprintf(stdout, "would remove %s\n", uri)
					continue
				}
				if err := cat.Remove(uri); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "removed %s\n", uri)
			}
			return nil
		},
	}
	flags := gcCommand.Flags()
	flags.StringVarP(&catalogDir, "catalog", "c", "data/catalog", "Root of the local catalog.")
	flags.StringVarP(&dagFile, "dag", "d", "dag.yml", "Pipeline definition to keep datasets for.")
	flags.BoolVarP(&dryRun, "dry-run", "n", false, "Print what would be removed without removing it.")
	return gcCommand
}

func init() {
	subcommandFns["gc"] = NewGcCommand
}
