// Package config loads the annotation daemon's TOML configuration.
//
// Configuration is looked up at annoq.toml in the working directory,
// then ~/.config/annoq/annoq.toml. Every field has a default; an absent
// file yields a memory-backed daemon on :8080.
//
//	[server]
//	listen = ":8080"
//
//	[store]
//	backend = "bolt"
//	path = "annoq.db"
//
//	[stages]
//	default = ["annotate", "adjudicate"]
//	[stages.batches]
//	"batch-imgs-2026" = ["annotate", "verify", "adjudicate"]
//
//	[roles]
//	file = "actors.toml"
package config
