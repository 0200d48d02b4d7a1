package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/config"
	"github.com/taskwell/mailroom/internal/database"
	"github.com/taskwell/mailroom/internal/repository"
	"github.com/taskwell/mailroom/server"
)

func main() {
	app := &cli.App{
		Name:  "mailroom",
		Usage: "email-to-task ingestion engine",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					_, dbConfig, engineDB, err := bootstrap()
					if err != nil {
						return err
					}

					if err := repository.MigrateDB(dbConfig, engineDB); err != nil {
						return err
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:  "server",
				Usage: "Start the application server",
				Action: func(c *cli.Context) error {
					cfg, _, engineDB, err := bootstrap()
					if err != nil {
						return err
					}

					log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
					log.Println("Mailroom starting up...")

					srv, err := server.NewServer(cfg, engineDB)
					if err != nil {
						return err
					}
					if err := srv.Run(); err != nil {
						return err
					}

					log.Println("Shutdown complete")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func bootstrap() (*config.Config, *database.DatabaseConfig, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	dbConfig := &database.DatabaseConfig{
		DBName:          cfg.EngineDatabaseConfig.DBName,
		Host:            cfg.EngineDatabaseConfig.Host,
		Port:            cfg.EngineDatabaseConfig.Port,
		User:            cfg.EngineDatabaseConfig.User,
		Password:        cfg.EngineDatabaseConfig.Password,
		MaxConn:         cfg.EngineDatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.EngineDatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.EngineDatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.EngineDatabaseConfig.LogLevel,
		SSLMode:         cfg.EngineDatabaseConfig.SSLMode,
	}
	engineDB, err := database.NewConnection(dbConfig)
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, dbConfig, engineDB, nil
}
