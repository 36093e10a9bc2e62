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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/statbase/etl"
	"github.com/statbase/etl/formats"
)

// NewHarmonizeCommand returns a command that checks a data column against a
// mapping file and reports or records the labels it cannot resolve.
func NewHarmonizeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		mappingFile   string
		inputFile     string
		column        string
		canonicalFile string
		storeFile     string
		space         string
		addIdentity   bool
	)
	harmonizeCommand := &cobra.Command{
		Use:   "harmonize",
		Short: "harmonize - check a data column against a mapping file",
		Long: `Reads a CSV, maps the given column through the mapping file, and
prints every label the mapping cannot resolve along with suggestions
from the canonical list. With --add-identity the unresolved labels are
appended to the mapping file mapped to themselves, ready for editing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := formats.ReadCSV(inputFile)
			if err != nil {
				return err
			}
			mapping, err := etl.LoadMapping(mappingFile)
			if err != nil {
				return err
			}
			var store *etl.BoltMappingStore
			if storeFile != "" {
				store, err = etl.NewBoltMappingStore(storeFile, space)
				if err != nil {
					return err
				}
				defer store.Close()
				saved, err := store.All(space)
				if err != nil {
					return err
				}
				for raw, canon := range saved {
					if _, ok := mapping[raw]; !ok {
						mapping[raw] = canon
					}
				}
			}
			var canonical []string
			if canonicalFile != "" {
				f, err := os.Open(canonicalFile)
				if err != nil {
					return err
				}
				scan := bufio.NewScanner(f)
				for scan.Scan() {
					if line := strings.TrimSpace(scan.Text()); line != "" {
						canonical = append(canonical, line)
					}
				}
				f.Close()
				if err := scan.Err(); err != nil {
					return err
				}
			}
			h := etl.NewHarmonizer(canonical, mapping)
			_, unmatched, err := t.HarmonizeColumn(h, column)
			if err != nil {
				return err
			}
			if len(unmatched) == 0 {
				fmt.Fprintln(stdout, "all labels resolved")
				return nil
			}
			for _, label := range unmatched {
				suggestions := h.Suggest(label)
				if len(suggestions) > 3 {
					suggestions = suggestions[:3]
				}
				fmt.Fprintf(stdout, "%s\t%s\n", label, strings.Join(suggestions, ", "))
				if addIdentity {
					mapping[label] = label
					if store != nil {
						if err := store.Set(space, label, label); err != nil {
							return err
						}
					}
				}
			}
			if addIdentity {
				return mapping.Save(mappingFile)
			}
			return nil
		},
	}
	flags := harmonizeCommand.Flags()
	flags.StringVarP(&mappingFile, "mapping", "m", "", "Mapping file to check against and optionally extend.")
	flags.StringVarP(&inputFile, "input", "i", "", "CSV file holding the column to harmonize.")
	flags.StringVarP(&column, "column", "c", "country", "Column holding entity labels.")
	flags.StringVar(&canonicalFile, "canonical", "", "File of canonical labels, one per line, used for suggestions.")
	flags.StringVar(&storeFile, "store", "", "Bolt database of saved mapping decisions, overlaid on the mapping file.")
	flags.StringVar(&space, "space", "entity", "Decision namespace within the store.")
	flags.BoolVar(&addIdentity, "add-identity", false, "Append unresolved labels to the mapping file as identity entries.")
	return harmonizeCommand
}

func init() {
	subcommandFns["harmonize"] = NewHarmonizeCommand
}
