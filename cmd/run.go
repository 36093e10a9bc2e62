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
	"io"
	"log"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"

	"github.com/statbase/etl/steps"
)

// RunMain is wrapped by NewRunCommand and only exported for testing purposes.
var RunMain *steps.Main

// NewRunCommand returns a new cobra command wrapping RunMain.
func NewRunCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	RunMain = steps.NewMain()
	runCommand := &cobra.Command{
		Use:   "run",
		Short: "run - execute the dirty steps of the pipeline DAG",
		Long: `Loads dag.yml, computes which steps are out of date against their
recorded checksums, and runs them in dependency order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				RunMain.Pattern = args[0]
			}
			start := time.Now()
			err = RunMain.Run()
			if err != nil {
				return err
			}
			log.Println("Done: ", time.Since(start))
			return nil
		},
	}
	flags := runCommand.Flags()
	err = commandeer.Flags(flags, RunMain)
	if err != nil {
		panic(err)
	}
	return runCommand
}

func init() {
	subcommandFns["run"] = NewRunCommand
}
