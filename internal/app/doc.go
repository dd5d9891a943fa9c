// Package app is the composition layer of the case practice backend.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── domain/             # Records (user, drill, simulation, subscription, feedback)
//	├── storage/            # Store interfaces plus memory and postgres implementations
//	├── services/           # Business logic, one package per concern
//	├── httpapi/            # gorilla/mux routes and handlers
//	├── system/             # Lifecycle manager for background components
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/appserver/
//	      │
//	      ▼
//	internal/app/httpapi ──► internal/app (composition)
//	                              │
//	                              ├──► internal/app/services/*
//	                              │          │
//	                              │          ├──► internal/ecosystem (pure engine)
//	                              │          └──► internal/platform/* (llm, billing, email, cache)
//	                              │
//	                              └──► internal/app/storage/*
//
// Optional integrations are passed through Deps. Leaving one nil keeps the
// application runnable: the heuristic evaluator replaces the LLM, checkout is
// rejected without a billing provider and notifications become no-ops.
package app
