package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/memory-mcp/internal/crypto"
	"github.com/chirino/memory-mcp/internal/migrate"
	"github.com/chirino/memory-mcp/internal/store/postgres"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Sources:  cli.EnvVars("MEMORY_MCP_DATABASE_URL"),
				Usage:    "Postgres connection string",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "encryption-key",
				Sources: cli.EnvVars("MEMORY_MCP_ENCRYPTION_KEY"),
				Usage:   "Passphrase enabling AES-256-GCM content encryption; empty disables it",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			sealer := crypto.New(cmd.String("encryption-key"))
			st, err := postgres.Open(ctx, cmd.String("database-url"), sealer)
			if err != nil {
				return err
			}
			defer st.Close()

			log.Info("running migrations")
			if err := migrate.Run(ctx, st.Pool()); err != nil {
				return err
			}
			log.Info("migrations complete")
			return nil
		},
	}
}
