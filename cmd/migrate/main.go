package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/iota-uz/caseflow/pkg/configuration"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	conf := configuration.Use()
	defer conf.Unload()

	db, err := sql.Open("postgres", conf.Database.Opts)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set dialect: %v", err)
	}

	var args []string
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := goose.Run(command, db, conf.MigrationsDir, args...); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}
}
