package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrEthical07/authclient"
	"github.com/spf13/cobra"
)

type requestFlags struct {
	data    string
	headers []string
	query   []string
	form    []string
	files   []string
	verbose bool
}

func requestCmd(a *app) *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "request <method> <path>",
		Short: "Send an authenticated request and print the response body",
		Example: `  authclient request GET /products/42
  authclient request POST /cart/items --data '{"productId":42,"quantity":1}'
  authclient request POST /reviews --form rating=5 --file photo=./front.jpg`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(strings.ToUpper(args[0]), args[1], f)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			resp, err := a.client.Do(ctx, req)
			if err != nil {
				return describe(err)
			}
			if f.verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d request_id=%s replayed=%t\n", resp.Status, resp.RequestID, resp.Replayed)
			}
			return writeBody(cmd, resp.Body)
		},
	}
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "JSON body (@file reads it from a file)")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "extra header, Name: value")
	cmd.Flags().StringArrayVarP(&f.query, "query", "q", nil, "query parameter, key=value")
	cmd.Flags().StringArrayVarP(&f.form, "form", "F", nil, "multipart field, key=value")
	cmd.Flags().StringArrayVar(&f.files, "file", nil, "multipart file, field=path")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "print status and request id to stderr")
	return cmd
}

func buildRequest(method, path string, f requestFlags) (*authclient.Request, error) {
	var (
		req *authclient.Request
		err error
	)
	switch {
	case len(f.form) > 0 || len(f.files) > 0:
		if f.data != "" {
			return nil, fmt.Errorf("--data cannot be combined with --form or --file")
		}
		req, err = multipartRequest(method, path, f)
	case f.data != "":
		body, rerr := readData(f.data)
		if rerr != nil {
			return nil, rerr
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("--data is not valid JSON")
		}
		req = authclient.NewRequest(method, path, body)
		req.Header.Set("Content-Type", "application/json")
	default:
		req = authclient.NewRequest(method, path, nil)
	}
	if err != nil {
		return nil, err
	}

	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("header %q: want Name: value", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if len(f.query) > 0 {
		req.Query = url.Values{}
		for _, q := range f.query {
			k, v, ok := strings.Cut(q, "=")
			if !ok {
				return nil, fmt.Errorf("query %q: want key=value", q)
			}
			req.Query.Add(k, v)
		}
	}
	return req, nil
}

func multipartRequest(method, path string, f requestFlags) (*authclient.Request, error) {
	fields := make(map[string]string, len(f.form))
	for _, kv := range f.form {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("form %q: want key=value", kv)
		}
		fields[k] = v
	}
	files := make([]authclient.FormFile, 0, len(f.files))
	for _, spec := range f.files {
		field, p, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("file %q: want field=path", spec)
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, authclient.FormFile{
			Field:       field,
			Name:        filepath.Base(p),
			ContentType: http.DetectContentType(content),
			Content:     content,
		})
	}
	return authclient.NewMultipartRequest(method, path, fields, files...)
}

func readData(data string) ([]byte, error) {
	if p, ok := strings.CutPrefix(data, "@"); ok {
		return os.ReadFile(p)
	}
	return []byte(data), nil
}

func writeBody(cmd *cobra.Command, body []byte) error {
	out := cmd.OutOrStdout()
	if len(body) == 0 {
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		pretty.WriteByte('\n')
		_, err = out.Write(pretty.Bytes())
		return err
	}
	_, err := out.Write(body)
	return err
}
