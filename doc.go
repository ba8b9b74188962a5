// Package groupchat provides a multi-agent group-chat orchestration core: a
// supervisor LLM decomposes an incoming user message into a plan and either
// steps through it turn by turn or hands off to a generated, reviewed
// workflow, dispatching to worker agents over a pluggable provider gateway.
//
// # Architecture
//
//	Client → /chat/stream, /chat/turn or /chat/workflow → Server → Engine → Supervisor/Agents
//
// The provider gateway (package providers), tool runtime (package
// toolruntime), supervisor protocol (package supervisor), execution engines
// (package engine), event fan-out (package eventstream), and persistence
// (package store) are independently testable components; package server
// wires them into the three HTTP endpoints, and cmd/groupchatd is the binary
// entry point.
//
// # Using as a Go library
//
//	import (
//	    "github.com/meshcrew/groupchat/engine"
//	    "github.com/meshcrew/groupchat/server"
//	    "github.com/meshcrew/groupchat/config"
//	)
package groupchat
