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

	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"

	"github.com/statbase/etl/snapshot"
)

// SnapshotMain is wrapped by NewSnapshotCommand and only exported for testing
// purposes.
var SnapshotMain *snapshot.Main

// NewSnapshotCommand returns a new cobra command wrapping SnapshotMain.
func NewSnapshotCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	SnapshotMain = snapshot.NewMain()
	snapshotCommand := &cobra.Command{
		Use:   "snapshot",
		Short: "snapshot - add a local file to the snapshot store, or fetch one",
		Long: `With --file, copies a local file into the store and writes its
provenance sidecar. Without it, fetches the named snapshot from the
bucket or its download URL and verifies the checksum.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return SnapshotMain.Run()
		},
	}
	flags := snapshotCommand.Flags()
	err = commandeer.Flags(flags, SnapshotMain)
	if err != nil {
		panic(err)
	}
	return snapshotCommand
}

func init() {
	subcommandFns["snapshot"] = NewSnapshotCommand
}
