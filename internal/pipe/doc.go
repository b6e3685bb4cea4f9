// Package pipe is the frontend's view of the goldfish pipe service that carries
// byte streams between a guest context and its host render thread.
//
// A mock service under `mock` is used for unit testing the resource transfer paths.
package pipe

//go:generate go run go.uber.org/mock/mockgen -source=pipe.go -package=pipe_mock -destination=mock/pipe_mock.go
