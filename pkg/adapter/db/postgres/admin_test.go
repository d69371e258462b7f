// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/momeni/dbinst/internal/test/dbcontainer"
	"github.com/momeni/dbinst/pkg/adapter/db/postgres"
	"github.com/momeni/dbinst/pkg/core/repo"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type DumpRestoreTestSuite struct {
	suite.Suite

	ctx    context.Context
	dfrs   []func()
	src  repo.AdminConn
	dst  repo.AdminConn
}

type idRow struct {
	ID int64 `gorm:"column:id"`
}

type nameRow struct {
	Name string `gorm:"column:name"`
}

func TestDumpRestoreTestSuite(t *testing.T) {
	suite.Run(t, new(DumpRestoreTestSuite))
}

func (s *DumpRestoreTestSuite) SetupSuite() {
	s.ctx = context.Background()
	s.src = s.connect("15")
	s.dst = s.connect("16")
}

func (s *DumpRestoreTestSuite) connect(version string) repo.AdminConn {
	t := s.T()
	pg, pool, dfrs, ok := dbcontainer.New(s.ctx, version, 90*time.Second, t)
	s.dfrs = append(s.dfrs, dfrs...)
	s.Require().True(ok, "starting postgres:%s", version)
	err := pool.Conn(s.ctx, func(ctx context.Context, c repo.Conn) error {
		for _, stmt := range seed(version) {
			if _, err := c.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	s.Require().NoError(err, "seeding postgres:%s", version)
	p, err := dbcontainer.ConnParams(pg)
	s.Require().NoError(err)
	ac, err := postgres.NewConnector(clock.WallClock).Connect(s.ctx, p, time.Minute)
	s.Require().NoError(err, "connecting to postgres:%s", version)
	s.dfrs = append(s.dfrs, func() {
		s.NoError(ac.Close())
	})
	return ac
}

// seed returns the statements which fill the source server. The
// target server is left empty.
func seed(version string) []string {
	if version != "15" {
		return nil
	}
	return []string{
		`CREATE ROLE shopkeeper LOGIN PASSWORD 'keeper-pass'`,
		`CREATE ROLE readers NOLOGIN`,
		`GRANT readers TO shopkeeper`,
		`CREATE DATABASE shop OWNER shopkeeper`,
	}
}

var shopSchema = []string{
	`CREATE SCHEMA sales AUTHORIZATION shopkeeper`,
	`CREATE TABLE sales.items (
		id bigint GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		title text NOT NULL UNIQUE,
		price numeric NOT NULL CHECK (price >= 0)
	)`,
	`CREATE TABLE sales.orders (
		id serial PRIMARY KEY,
		item bigint NOT NULL REFERENCES sales.items(id),
		qty integer NOT NULL DEFAULT 1,
		total numeric GENERATED ALWAYS AS (qty * 2) STORED,
		note text
	)`,
	`CREATE INDEX orders_item_idx ON sales.orders (item)`,
	`CREATE VIEW sales.big_orders AS SELECT id, qty FROM sales.orders WHERE qty > 2`,
	`INSERT INTO sales.items (title, price) VALUES ('pen', 1.5), ('ink', 3), ('tab	quote''s', 0)`,
	`INSERT INTO sales.orders (item, qty, note) VALUES (1, 1, NULL), (2, 5, 'line
break'), (3, 3, E'back\\slash')`,
	`ALTER TABLE sales.items OWNER TO shopkeeper`,
	`ALTER TABLE sales.orders OWNER TO shopkeeper`,
}

func (s *DumpRestoreTestSuite) TearDownSuite() {
	for i := len(s.dfrs) - 1; i >= 0; i-- {
		s.dfrs[i]()
	}
}

func (s *DumpRestoreTestSuite) TestDumpAndRestore() {
	t := s.T()
	r := require.New(t)
	srcURL := s.shopURL(s.src)
	shop, err := postgres.WaitPool(s.ctx, srcURL, time.Minute, clock.WallClock)
	r.NoError(err)
	err = shop.Conn(s.ctx, func(ctx context.Context, c repo.Conn) error {
		for _, stmt := range shopSchema {
			if _, err := c.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	r.NoError(shop.Close())
	r.NoError(err, "creating the shop schema")

	dump := filepath.Join(t.TempDir(), "main.dump")
	r.NoError(s.src.DumpAll(s.ctx, dump, true))
	r.FileExists(filepath.Join(dump, "globals.json"))
	r.Error(s.src.DumpAll(s.ctx, dump, true), "existing destination")
	_, err = os.Stat(dump + ".partial")
	r.True(os.IsNotExist(err), "partial dump is renamed")

	r.NoError(s.dst.RestoreAll(s.ctx, dump))

	dstShop, err := postgres.WaitPool(
		s.ctx, s.shopURL(s.dst), time.Minute, clock.WallClock,
	)
	r.NoError(err)
	defer dstShop.Close()
	type order struct {
		ID    int64   `gorm:"column:id"`
		Title string  `gorm:"column:title"`
		Qty   int     `gorm:"column:qty"`
		Total float64 `gorm:"column:total"`
		Note  *string `gorm:"column:note"`
	}
	var orders []order
	err = dstShop.Raw(`SELECT o.id, i.title, o.qty, o.total, o.note
FROM sales.orders o JOIN sales.items i ON i.id = o.item ORDER BY o.id`).
		Scan(&orders).Error
	r.NoError(err)
	r.Len(orders, 3)
	r.Equal("tab\tquote's", orders[2].Title)
	r.Equal(10.0, orders[1].Total)
	r.Nil(orders[0].Note)
	r.Equal("line\nbreak", *orders[1].Note)
	r.Equal(`back\slash`, *orders[2].Note)

	var big []idRow
	r.NoError(dstShop.Raw(`SELECT id FROM sales.big_orders ORDER BY id`).Scan(&big).Error)
	r.Equal([]idRow{{2}, {3}}, big)

	// sequences continue after the restored rows
	var next []idRow
	r.NoError(dstShop.Raw(
		`INSERT INTO sales.items (title, price) VALUES ('cap', 2) RETURNING id`,
	).Scan(&next).Error)
	r.Equal([]idRow{{4}}, next)
	next = nil
	r.NoError(dstShop.Raw(
		`INSERT INTO sales.orders (item) VALUES (4) RETURNING id`,
	).Scan(&next).Error)
	r.Equal([]idRow{{4}}, next)

	err = dstShop.Exec(`INSERT INTO sales.orders (item) VALUES (99)`).Error
	r.Error(err, "foreign keys are restored")

	var owner []nameRow
	r.NoError(dstShop.Raw(`SELECT pg_get_userbyid(datdba) AS name
FROM pg_database WHERE datname = 'shop'`).Scan(&owner).Error)
	r.Equal([]nameRow{{"shopkeeper"}}, owner)

	var members []nameRow
	r.NoError(dstShop.Raw(`SELECT m.rolname AS name FROM pg_auth_members a
	JOIN pg_roles r ON r.oid = a.roleid JOIN pg_roles m ON m.oid = a.member
WHERE r.rolname = 'readers'`).Scan(&members).Error)
	r.Equal([]nameRow{{"shopkeeper"}}, members)
}

func (s *DumpRestoreTestSuite) shopURL(ac repo.AdminConn) string {
	p := ac.(*postgres.AdminConn).Params()
	p.Database = "shop"
	return postgres.DSN(p)
}
