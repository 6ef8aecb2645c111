package main

// Build-time version identity, overridden with
//
//	go build -ldflags="-X main.commitHash=${COMMIT_HASH}"
var commitHash = "dev"
