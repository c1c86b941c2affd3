package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"file-transfer-testserver/internal/client"
	"file-transfer-testserver/internal/discovery"
)

type uploadFlags struct {
	server      string
	field       string
	name        string
	contentType string
	params      []string
	discover    bool
	timeout     time.Duration
	noProgress  bool
}

func newUploadCmd() *cobra.Command {
	var f uploadFlags

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a file to a running test server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.server, "server", "", "server base URL (default http://localhost:3000)")
	fl.StringVar(&f.field, "field", "file", "multipart field holding the file")
	fl.StringVar(&f.name, "name", "", "filename sent to the server (default: base name of FILE)")
	fl.StringVar(&f.contentType, "content-type", "", "content type of the file part (default: from extension)")
	fl.StringArrayVar(&f.params, "param", nil, "extra form field as key=value, repeatable")
	fl.BoolVar(&f.discover, "discover", false, "find the server on the local network via mDNS")
	fl.DurationVar(&f.timeout, "discover-timeout", 3*time.Second, "how long to browse for servers")
	fl.BoolVar(&f.noProgress, "no-progress", false, "do not draw a progress bar")
	return cmd
}

func runUpload(cmd *cobra.Command, f uploadFlags, path string) error {
	params, err := parseParams(f.params)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	server := f.server
	if server == "" && f.discover {
		server, err = discoverServer(cmd.Context(), f.timeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "using %s\n", server)
	}
	if server == "" {
		server = "http://localhost:3000"
	}

	name := f.name
	if name == "" {
		name = filepath.Base(path)
	}

	var progress io.Writer
	if !f.noProgress {
		progress = progressbar.NewOptions64(st.Size(),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("uploading"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(cmd.ErrOrStderr(), "\n")
			}),
		)
	}

	ack, err := client.Upload(cmd.Context(), client.Options{
		Server:      server,
		Field:       f.field,
		Name:        name,
		ContentType: f.contentType,
		Params:      params,
	}, file, progress)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ack)
}

func parseParams(raw []string) (map[string]string, error) {
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", kv)
		}
		params[k] = v
	}
	return params, nil
}

// discoverServer returns the first announced upload endpoint.
func discoverServer(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 10)
	browseErr := make(chan error, 1)
	go func() { browseErr <- discovery.Browse(ctx, entries) }()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("no %s server found within %s", discovery.Service, timeout)
			}
			if endpoint, ok := discovery.Endpoint(entry); ok {
				return endpoint, nil
			}
		case err := <-browseErr:
			if err != nil {
				return "", err
			}
			browseErr = nil
		case <-ctx.Done():
			return "", fmt.Errorf("no %s server found within %s", discovery.Service, timeout)
		}
	}
}
