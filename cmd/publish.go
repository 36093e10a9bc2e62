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
	"os"

	"github.com/spf13/cobra"

	"github.com/statbase/etl"
	"github.com/statbase/etl/catalog"
	"github.com/statbase/etl/snapshot/s3"
)

// NewPublishCommand returns a command that syncs the local catalog to a
// bucket.
func NewPublishCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		catalogDir string
		bucket     string
		region     string
		endpoint   string
	)
	publishCommand := &cobra.Command{
		Use:   "publish",
		Short: "publish - push changed catalog files to a bucket",
		Long: `Compares every catalog file's checksum against the remote manifest
and uploads only what changed. The manifest is uploaded last.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []s3.Option
			if region != "" {
				opts = append(opts, s3.OptRegion(region))
			}
			if endpoint != "" {
				opts = append(opts, s3.OptEndpoint(endpoint))
			}
			client, err := s3.NewClient(bucket, opts...)
			if err != nil {
				return err
			}
			pub := catalog.NewPublisher(catalog.NewLocal(catalogDir), client)
			pub.Log = etl.StdLogger{Logger: log.New(os.Stderr, "", log.LstdFlags)}
			return pub.Publish()
		},
	}
	flags := publishCommand.Flags()
	flags.StringVarP(&catalogDir, "catalog", "c", "data/catalog", "Root of the local catalog.")
	flags.StringVarP(&bucket, "bucket", "b", "", "Bucket to publish to.")
	flags.StringVar(&region, "region", "", "AWS region for the bucket.")
	flags.StringVar(&endpoint, "endpoint", "", "Custom S3 endpoint for R2 or MinIO.")
	return publishCommand
}

func init() {
	subcommandFns["publish"] = NewPublishCommand
}
