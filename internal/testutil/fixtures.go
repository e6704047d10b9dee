package testutil

import (
	_ "embed"
)

// MetadataJSON is `cargo metadata` output for a small workspace:
//
//	app 0.1.0 (root)
//	├── serde 1.0.210
//	├── foo-derive 0.8.0 (imported as foo_derive)
//	│   ├── proc-macro2 1.0.86 ── unicode-ident 1.0.12
//	│   ├── quote 1.0.37 ── proc-macro2
//	│   ├── syn 2.0.77 ── proc-macro2, quote, unicode-ident
//	│   └── insta 1.39.0 [dev]
//	├── cc 1.1.0 [build]
//	└── tempfile 3.10.0 [dev]
//
//go:embed testdata/metadata.json
var MetadataJSON []byte

// RootCrate is the root package of MetadataJSON.
const RootCrate = "app"
