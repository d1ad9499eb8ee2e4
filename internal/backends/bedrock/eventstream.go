package bedrock

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"llmbridge/internal/core"
)

// The streaming endpoint frames its payloads in the AWS event-stream binary
// format. Framing (prelude, headers block, CRC verification) is handled by
// the SDK decoder; each message payload is a JSON object whose "bytes" field
// carries the base64-encoded model chunk.

type eventStreamDecoder struct {
	r       io.Reader
	dec     *eventstream.Decoder
	payload []byte
}

func newEventStreamDecoder(r io.Reader) *eventStreamDecoder {
	return &eventStreamDecoder{r: r, dec: eventstream.NewDecoder()}
}

// next returns the model chunk payload of the next frame. Frames without a
// "bytes" field (pings, metric events) are skipped. io.EOF signals a clean
// end of stream.
func (d *eventStreamDecoder) next() ([]byte, error) {
	for {
		msg, err := d.dec.Decode(d.r, d.payload[:0])
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, core.NewError(core.KindBackend, "bedrock",
				"malformed event stream frame: "+err.Error())
		}
		d.payload = msg.Payload

		var envelope struct {
			Bytes []byte `json:"bytes"`
		}
		if err := json.Unmarshal(msg.Payload, &envelope); err != nil || len(envelope.Bytes) == 0 {
			continue
		}
		return envelope.Bytes, nil
	}
}

// encodeFrame builds one wire-accurate event-stream frame around payload.
// Tests use it to produce stream fixtures.
func encodeFrame(payload []byte) []byte {
	body, _ := json.Marshal(map[string]string{
		"bytes": base64.StdEncoding.EncodeToString(payload),
	})
	msg := eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":message-type", Value: eventstream.StringValue("event")},
			{Name: ":event-type", Value: eventstream.StringValue("chunk")},
		},
		Payload: body,
	}
	var buf bytes.Buffer
	if err := eventstream.NewEncoder().Encode(&buf, msg); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
