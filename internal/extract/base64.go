package extract

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeSerializedPart recovers image bytes from a raw serialized MIME
// part. Lines are accumulated only after the first blank line, which
// skips the part headers that precede the base64 body.
func DecodeSerializedPart(serialized []byte) ([]byte, error) {
	var sb strings.Builder

	inBody := false
	for _, line := range strings.Split(string(serialized), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			inBody = true
			continue
		}
		if inBody {
			sb.WriteString(strings.TrimSpace(line))
		}
	}

	data, err := base64.StdEncoding.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 body: %w", err)
	}
	return data, nil
}

func newBufReader(raw []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(raw))
}
