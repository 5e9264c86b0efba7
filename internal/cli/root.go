package cli

import (
	"os"

	"github.com/spf13/cobra"

	"vigilstream/pkg/client"
)

type clientFlags struct {
	serverAddr string
	userID     string
	role       string

	enableTLS  bool
	caCert     string
	clientCert string
	clientKey  string
	serverName string
}

var clientCfg = &clientFlags{}

var rootCmd = &cobra.Command{
	Use:   "vigilstream",
	Short: "Media processing and moderation service",
	Long: "vigilstream processes uploaded media objects, classifies their content and streams " +
		"live progress to watchers. Run 'vigilstream server' to start the service; the other " +
		"commands talk to a running server over gRPC.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&clientCfg.serverAddr, "server", "s", envOr("VIGIL_SERVER", "localhost:50051"),
		"Server address in format host:port")
	flags.StringVarP(&clientCfg.userID, "user", "u", os.Getenv("VIGIL_USER_ID"),
		"User id sent as x-user-id")
	flags.StringVarP(&clientCfg.role, "role", "r", envOr("VIGIL_USER_ROLE", "viewer"),
		"Role sent as x-user-role (viewer, editor, admin)")

	flags.BoolVar(&clientCfg.enableTLS, "tls", false, "Use mutual TLS instead of identity metadata")
	flags.StringVar(&clientCfg.caCert, "ca", "./certs/ca-cert.pem", "Path to CA certificate file")
	flags.StringVar(&clientCfg.clientCert, "cert", "./certs/client-cert.pem", "Path to client certificate file")
	flags.StringVar(&clientCfg.clientKey, "key", "./certs/client-key.pem", "Path to client key file")
	flags.StringVar(&clientCfg.serverName, "server-name", "vigilstream", "Expected server certificate name")

	// usually configured once per machine
	_ = flags.MarkHidden("ca")
	_ = flags.MarkHidden("cert")
	_ = flags.MarkHidden("key")
	_ = flags.MarkHidden("server-name")

	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newDecideCmd())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newMediaClient() (*client.MediaClient, error) {
	return client.NewMediaClient(clientCfg.serverAddr, client.Options{
		UserID:         clientCfg.userID,
		Role:           clientCfg.role,
		EnableTLS:      clientCfg.enableTLS,
		CACertPath:     clientCfg.caCert,
		ClientCertPath: clientCfg.clientCert,
		ClientKeyPath:  clientCfg.clientKey,
		ServerName:     clientCfg.serverName,
	})
}
