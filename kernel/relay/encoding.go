// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "encoding/base64"

func decodeBase64Payload(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func encodeBase64Payload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(payload)
}
