// Package backend defines the host renderer the frontend forwards GPU work to.
//
// A mock backend under `mock` is used for unit testing the frontend and resources.
package backend

//go:generate go run go.uber.org/mock/mockgen -source=backend.go -package=backend_mock -destination=mock/backend_mock.go
