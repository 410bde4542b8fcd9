package database

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/miescuela/core"
)

func TestDriverName(t *testing.T) {
	tests := []struct {
		engine string
		want   string
	}{
		{"", EnginePQ},
		{"postgres", EnginePQ},
		{"pgx", EnginePGX},
		{"mysql", EnginePQ},
	}
	for _, tc := range tests {
		t.Run(tc.engine, func(t *testing.T) {
			conf := &core.Config{Database: core.DatabaseConfig{Engine: tc.engine}}
			assert.Equal(t, tc.want, DriverName(conf))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "pq", err: &pq.Error{Code: "23505"}, want: true},
		{name: "pq wrapped", err: errors.Wrap(&pq.Error{Code: "23505"}, "inserting grade"), want: true},
		{name: "pq other code", err: &pq.Error{Code: "23503"}},
		{name: "pgx", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pgx wrapped", err: errors.Wrap(&pgconn.PgError{Code: "23505"}, "inserting grade"), want: true},
		{name: "pgx other code", err: &pgconn.PgError{Code: "42P01"}},
		{name: "plain", err: errors.New("duplicate")},
		{name: "nil"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUniqueViolation(tc.err))
		})
	}
}
