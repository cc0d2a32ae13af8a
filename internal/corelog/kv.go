/*************************************************************************
* Copyright 2017 Gravwell, Inc. All rights reserved.
* Contact: <legal@gravwell.io>
*
* This software may be modified and distributed under the terms of the
* BSD 2-clause license. See the LICENSE file for details.
**************************************************************************/

package corelog

import (
	"fmt"

	"github.com/crewjam/rfc5424"
)

// KV builds a structured-data parameter out of a name/value pair.
func KV(name string, value interface{}) (r rfc5424.SDParam) {
	r.Name = name
	switch v := value.(type) {
	case string:
		r.Value = v
	default:
		r.Value = fmt.Sprintf("%v", value)
	}
	return
}

// KVErr is a shorthand for KV("error", err).
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}

// KVLogger carries a fixed set of structured fields attached to every
// line it writes, useful for per-task loggers ("task", taskID).
type KVLogger struct {
	*Logger
	kvs []rfc5424.SDParam
}

func NewLoggerWithKV(l *Logger, kvs ...rfc5424.SDParam) *KVLogger {
	return &KVLogger{Logger: l, kvs: kvs}
}

func (kvl *KVLogger) AddKV(kvs ...rfc5424.SDParam) {
	kvl.kvs = append(kvl.kvs, kvs...)
}

func (kvl *KVLogger) Debug(msg string, kvs ...rfc5424.SDParam) error {
	return kvl.outputStructured(defaultDepth+1, DEBUG, msg, append(append([]rfc5424.SDParam{}, kvl.kvs...), kvs...)...)
}
func (kvl *KVLogger) Info(msg string, kvs ...rfc5424.SDParam) error {
	return kvl.outputStructured(defaultDepth+1, INFO, msg, append(append([]rfc5424.SDParam{}, kvl.kvs...), kvs...)...)
}
func (kvl *KVLogger) Warn(msg string, kvs ...rfc5424.SDParam) error {
	return kvl.outputStructured(defaultDepth+1, WARN, msg, append(append([]rfc5424.SDParam{}, kvl.kvs...), kvs...)...)
}
func (kvl *KVLogger) Error(msg string, kvs ...rfc5424.SDParam) error {
	return kvl.outputStructured(defaultDepth+1, ERROR, msg, append(append([]rfc5424.SDParam{}, kvl.kvs...), kvs...)...)
}
