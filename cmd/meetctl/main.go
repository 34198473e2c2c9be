// Command meetctl はディレクトリレコードとロールを管理するCLI。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hitoshi/codemeet/internal/admin"
	"github.com/hitoshi/codemeet/internal/config"
	"github.com/hitoshi/codemeet/internal/database"
	"github.com/hitoshi/codemeet/internal/logger"
	"github.com/hitoshi/codemeet/internal/metrics"
	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/repository"
	"github.com/hitoshi/codemeet/internal/user"
)

func main() {
	logger.SetupDefault(os.Stderr, os.Getenv("LOG_LEVEL"))

	root := admin.NewRootCommand(openDirectory)
	if err := root.Execute(); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", apiErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func openDirectory(ctx context.Context) (admin.Directory, func() error, error) {
	databaseURL, err := config.LoadDatabaseURL()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, nil, err
	}

	svc := user.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		nil, metrics.Nop{},
	)
	return svc, db.Close, nil
}
