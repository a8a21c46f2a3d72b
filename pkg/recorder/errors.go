package recorder

import "errors"

var (
	errTLSFilesRequired = errors.New("postgres tls: cert_file, key_file, and ca_file are required")
	errCAParseFailed    = errors.New("postgres tls: unable to append CA certificate")
	errNoEventData      = errors.New("cloud event has no data payload")
)
