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

package s3

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// Option is a functional option type for s3.Client.
type Option func(c *Client)

// OptRegion sets the AWS region.
func OptRegion(region string) Option {
	return func(c *Client) {
		c.region = region
	}
}

// OptEndpoint points the client at an S3-compatible endpoint (R2, MinIO).
// Path-style addressing is switched on since most compatible stores need
// it.
func OptEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// Client wraps the S3 API for one bucket. It satisfies both
// snapshot.Downloader and snapshot.Uploader.
type Client struct {
	bucket   string
	region   string
	endpoint string

	s3   *s3.S3
	sess *session.Session
}

// NewClient returns a client for the given bucket.
func NewClient(bucket string, opts ...Option) (*Client, error) {
	c := &Client{bucket: bucket, region: "us-east-1"}
	for _, opt := range opts {
		opt(c)
	}
	cfg := &aws.Config{Region: aws.String(c.region)}
	if c.endpoint != "" {
		cfg.Endpoint = aws.String(c.endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	var err error
	c.sess, err = session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "getting session")
	}
	c.s3 = s3.New(c.sess)
	return c, nil
}

// Download fetches the object at key into the local file dest.
func (c *Client) Download(key, dest string) error {
	result, err := c.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "fetching %v", key)
	}
	defer result.Body.Close()
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	defer f.Close()
	if _, err := io.Copy(f, result.Body); err != nil {
		return errors.Wrapf(err, "writing %s", dest)
	}
	return nil
}

// Upload stores the local file src at key.
func (c *Client) Upload(src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer f.Close()
	_, err = c.s3.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return errors.Wrapf(err, "putting %v", key)
}

// List returns the keys under prefix.
func (c *Client) List(prefix string) ([]string, error) {
	resp, err := c.s3.ListObjects(&s3.ListObjectsInput{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	keys := make([]string, len(resp.Contents))
	for i, obj := range resp.Contents {
		keys[i] = *obj.Key
	}
	return keys, nil
}

// RawSource is an etl.RawSource over the objects under a bucket prefix.
type RawSource struct {
	client  *Client
	objects []*s3.Object
	objIdx  *uint64
}

// NewRawSource lists the objects under prefix and returns a source over
// them.
func NewRawSource(client *Client, prefix string) (*RawSource, error) {
	idx := uint64(0)
	rs := &RawSource{
		client: client,
		objIdx: &idx,
	}
	resp, err := client.s3.ListObjects(&s3.ListObjectsInput{
		Bucket: aws.String(client.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	rs.objects = resp.Contents
	return rs, nil
}

type objReader struct {
	name string
	body io.ReadCloser
}

func (o *objReader) Read(buf []byte) (n int, err error) {
	return o.body.Read(buf)
}

func (o *objReader) Close() error {
	return o.body.Close()
}

func (o *objReader) Name() string {
	return o.name
}

// NextReader returns a reader over the next object. io.EOF signals
// exhaustion.
func (rs *RawSource) NextReader() (etl.NamedReadCloser, error) {
	idx := atomic.AddUint64(rs.objIdx, 1) - 1
	if int(idx) >= len(rs.objects) {
		return nil, io.EOF
	}
	obj := rs.objects[idx]

	result, err := rs.client.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rs.client.bucket),
		Key:    aws.String(*obj.Key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", *obj.Key)
	}
	return &objReader{name: *obj.Key, body: result.Body}, nil
}
