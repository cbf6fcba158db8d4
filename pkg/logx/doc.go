// Package logx is the project-wide structured logging facade.
//
// It wraps zerolog behind a tiny Field API so call sites stay stable while
// sinks (console, file) and levels are swapped live on config reload.
package logx
