// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the device database of the
// Urukul boards: CPLDs, DDS channels and the designs loaded during runs.
package conddb // import "github.com/go-lpc/urukul/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/sync/errgroup"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"

	// maximum time spent waiting for the database to answer pings.
	pingTimeout = 20 * time.Second
)

// DB exposes convenience methods to easily retrieve the device
// configuration of the Urukul boards.
type DB struct {
	db   *sql.DB
	name string // name of the device database
}

// Open opens a connection to the device database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}

	bkoff := backoff.NewExponentialBackOff()
	bkoff.MaxElapsedTime = pingTimeout

	err := backoff.Retry(op, bkoff)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

// Name returns the name of the database.
func (db *DB) Name() string { return db.name }

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastDesign returns the name of the waveform design loaded by the most
// recent run.
func (db *DB) LastDesign(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	design := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT design FROM runs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return design, fmt.Errorf("conddb: could not query last design: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&design)
		if err != nil {
			return design, fmt.Errorf("conddb: could not get design value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return design, fmt.Errorf("conddb: could not scan db for last design: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return design, fmt.Errorf("conddb: context error while retrieving last design: %w", err)
	}

	if design == "" {
		return design, fmt.Errorf("conddb: no design recorded in %q", db.name)
	}

	return design, nil
}

// CPLDs returns the Urukul boards registered in the database.
func (db *DB) CPLDs(ctx context.Context) ([]CPLD, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cplds []CPLD
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name, spi, io_update, clk_sel, clk_div, sync_sel FROM cplds ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not run cplds query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dev CPLD
		err = rows.Scan(
			&dev.Name, &dev.SPI, &dev.IOUpdate,
			&dev.ClkSel, &dev.ClkDiv, &dev.SyncSel,
		)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan row %d for cplds: %w", len(cplds), err)
		}
		cplds = append(cplds, dev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for cplds: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving cplds: %w", err)
	}

	return cplds, nil
}

// Channels returns the DDS channels registered in the database.
func (db *DB) Channels(ctx context.Context) ([]Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var chans []Channel
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name, cpld, chip_select, sysclk, pll_n FROM channels ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not run channels query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ch Channel
		err = rows.Scan(&ch.Name, &ch.CPLD, &ch.ChipSelect, &ch.SysClk, &ch.PLLN)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan row %d for channels: %w", len(chans), err)
		}
		chans = append(chans, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for channels: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving channels: %w", err)
	}

	return chans, nil
}

// Devices returns the CPLDs and the DDS channels registered in the
// database. Channels referring to an unknown CPLD are reported as errors.
func (db *DB) Devices(ctx context.Context) (Devices, error) {
	var devs Devices
	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		var err error
		devs.CPLDs, err = db.CPLDs(ctx)
		return err
	})
	grp.Go(func() error {
		var err error
		devs.Channels, err = db.Channels(ctx)
		return err
	})

	err := grp.Wait()
	if err != nil {
		return devs, err
	}

	err = devs.validate()
	if err != nil {
		return devs, err
	}

	return devs, nil
}
