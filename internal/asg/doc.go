// Package asg is the frontend's view of the address space graphics sub-device, which
// issues the handles that bind a (context, resource) pair to a render thread.
//
// A mock under `mock` is used for unit testing the frontend.
package asg

//go:generate go run go.uber.org/mock/mockgen -source=asg.go -package=asg_mock -destination=mock/asg_mock.go
