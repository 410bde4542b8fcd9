// Package appfs embeds the files the binaries need at runtime: SQL migrations, email templates, assets and authorization policies.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* assets/* authz/*
var FS embed.FS
