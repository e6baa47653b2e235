// Package config provides the component graph of a conductor stack and the
// loader that produces it.
//
// # Discovery
//
// The document (conductor.yml unless --config says otherwise) is searched in
// the working directory first and then in every parent directory up to the
// filesystem root. Its directory becomes the project root; relative component
// paths resolve against it.
//
// # Layers
//
// Configuration is merged in the following order, later layers winning:
//
//  1. Built-in defaults (DefaultProject)
//  2. The discovered document
//  3. Command line overrides (applied by internal/app)
//
// # Document Structure
//
//	name: shop
//	stopOn: any          # or "failure"
//	gracePeriod: 5s
//	components:
//	  - name: api
//	    tags: [web, api]
//	    color: blue
//	    repo: git@github.com:acme/api.git
//	    path: services/api
//	    delay: 2
//	    env:
//	      PORT: "8080"
//	      DATA_DIR: "${HOME}/data"
//	    start:
//	      command: go
//	      args: ["run", "./cmd/api"]
//	    init:
//	      - go mod download
//	      - command: make
//	        args: [generate]
//
// Commands may be written either as a mapping or as a plain command line that
// is split on whitespace. Documents ending in .toml are accepted too and go
// through the same decoding rules.
//
// # Environment Variable Expansion
//
// repo, path, env values and command dir/env values support ${VAR} and
// ${VAR:-default} references, resolved against the invoking environment.
//
// # Errors
//
// Every failure to find, read, decode or validate the document is returned
// as a *ConfigError whose message can be shown to the user verbatim.
package config
