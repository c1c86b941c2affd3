// Command testserver runs the multipart upload test server and ships a small
// client for pushing files to it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"file-transfer-testserver/internal/config"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	v.SetDefault("version", version)
	v.SetDefault("commit", commit)

	var configFile string

	root := &cobra.Command{
		Use:   "testserver",
		Short: "Multipart upload test server",
		Long: `testserver accepts multipart POST /upload requests, stores the file under a
sanitized name and serves it back under /files/. Run without a subcommand to
start the server.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCommand(cmd, v, configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	bindServeFlags(root, v)

	root.AddCommand(newUploadCmd())
	root.AddCommand(newVersionCmd(v))
	return root
}

func newVersionCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := v.GetString("version")
			if c := v.GetString("commit"); c != "" {
				out += " (" + c + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
		},
	}
}

// bindServeFlags registers the server flags on cmd and binds them to the
// matching config keys, so flag > env > file > default.
func bindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("addr", ":3000", "listen address")
	f.String("static-dir", "./static", "directory served at /")
	f.String("upload-dir", "", "directory for disk uploads (default <static-dir>/files)")
	f.String("field", "file", "multipart field holding the file")
	f.Int64("max-upload-bytes", 0, "reject bodies larger than this (0 = unlimited)")
	f.String("storage", "disk", "storage backend: disk or s3")
	f.String("collision", "suffix", "name collision policy: suffix or overwrite")
	f.Bool("thumbnails", false, "generate thumbnails for image uploads")
	f.String("database-url", "", "postgres url for the upload catalog")
	f.Bool("mdns", false, "announce the server on the local network")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("log-format", "text", "text or json")
	f.Bool("compression", true, "gzip JSON and static responses")

	for key, flag := range map[string]string{
		"addr":               "addr",
		"static_dir":         "static-dir",
		"upload_dir":         "upload-dir",
		"form_field":         "field",
		"max_upload_bytes":   "max-upload-bytes",
		"storage.backend":    "storage",
		"storage.collision":  "collision",
		"thumbnails.enabled": "thumbnails",
		"database_url":       "database-url",
		"mdns.enabled":       "mdns",
		"log.level":          "log-level",
		"log.format":         "log-format",
		"compression":        "compression",
	} {
		// Lookup cannot fail for flags registered above.
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
}
