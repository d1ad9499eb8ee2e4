// Package bedrock adapts the AWS Bedrock runtime to the canonical backend
// contract. Requests are SigV4-signed; the body and response shapes branch on
// the model-id vendor prefix.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
	"llmbridge/internal/llmclient"
)

func init() {
	backends.Register("bedrock", func(cfg core.BackendConfig) (core.Backend, error) {
		creds := cfg.Credentials.(core.SigningCredentials)
		return New(creds), nil
	})
}

// emptyPayloadHash is the SHA-256 of a zero-length body.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Backend implements core.StreamingBackend over the Bedrock runtime.
type Backend struct {
	client *llmclient.Client
	signer *v4.Signer
	creds  aws.Credentials
	region string
	now    func() time.Time
}

// New creates a Bedrock backend for the credential's region.
func New(creds core.SigningCredentials) *Backend {
	endpoint := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", creds.Region)
	return newWithEndpoint(creds, endpoint, nil)
}

// NewWithEndpoint creates a backend against a custom endpoint for testing.
func NewWithEndpoint(creds core.SigningCredentials, endpoint string, hc *http.Client) *Backend {
	return newWithEndpoint(creds, endpoint, hc)
}

func newWithEndpoint(creds core.SigningCredentials, endpoint string, hc *http.Client) *Backend {
	b := &Backend{
		signer: v4.NewSigner(),
		creds: aws.Credentials{
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			SessionToken:    creds.SessionToken,
		},
		region: creds.Region,
		now:    time.Now,
	}
	if hc != nil {
		b.client = llmclient.NewWithHTTPClient("bedrock", endpoint, hc, b.sign)
	} else {
		b.client = llmclient.New("bedrock", endpoint, b.sign)
	}
	return b
}

func (b *Backend) ID() string { return "bedrock" }

// sign runs as the header setter, after body and content type are in place,
// so the signature covers the final request.
func (b *Backend) sign(req *http.Request) error {
	payloadHash := emptyPayloadHash
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return core.ClassifyErr("bedrock", err)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return core.ClassifyErr("bedrock", err)
		}
		sum := sha256.Sum256(data)
		payloadHash = hex.EncodeToString(sum[:])
	}
	err := b.signer.SignHTTP(req.Context(), b.creds, req, payloadHash, "bedrock", b.region, b.now())
	if err != nil {
		return core.ClassifyErr("bedrock", err)
	}
	return nil
}

func (b *Backend) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	family, err := familyFor(req.Model)
	if err != nil {
		return nil, err
	}

	raw, err := b.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/model/" + req.Model + "/invoke",
		Body:     family.body(req),
	})
	if err != nil {
		return nil, err
	}

	resp := family.parse(raw)
	resp.Model = req.Model
	resp.Backend = "bedrock"
	if resp.Usage.TotalTokens == 0 {
		resp.Usage = backends.HeuristicUsage(req, resp.Content, 0)
	}
	resp.Cost = priceTable.Cost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

func (b *Backend) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	family, err := familyFor(req.Model)
	if err != nil {
		return nil, err
	}

	body, err := b.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/model/" + req.Model + "/invoke-with-response-stream",
		Body:     family.body(req),
	})
	if err != nil {
		return nil, err
	}

	decoder := newEventStreamDecoder(body)
	seq := func(yield func(core.Chunk, error) bool) {
		defer body.Close()
		for {
			if err := ctx.Err(); err != nil {
				yield(core.Chunk{}, core.ClassifyErr("bedrock", err))
				return
			}
			payload, err := decoder.next()
			if err != nil {
				if err == io.EOF {
					return
				}
				yield(core.Chunk{}, core.ClassifyErr("bedrock", err))
				return
			}
			chunk, ok := family.parseChunk(payload)
			if !ok {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}

	base := core.Response{Model: req.Model, Backend: "bedrock"}
	return core.NewStream(base, seq, func(resp *core.Response) {
		if resp.Usage.TotalTokens == 0 {
			resp.Usage = backends.HeuristicUsage(req, resp.Content, 0)
		}
		resp.Cost = priceTable.Cost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}), nil
}

func (b *Backend) ListModels(ctx context.Context) ([]core.ModelDescriptor, error) {
	return knownModels(), nil
}

func (b *Backend) EstimateCost(req *core.Request) float64 {
	return backends.EstimateCost(req, priceTable, 0)
}

func (b *Backend) CheckAvailable(ctx context.Context) error {
	_, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/model/unknown/invoke",
	})
	return err
}

// TestConnection sends an unsigned-content GET to the runtime host. Bedrock
// answers 403 on bad signatures and 4xx otherwise; any response except an
// auth rejection proves the keys and region resolve.
func (b *Backend) TestConnection(ctx context.Context) (bool, error) {
	status, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/model/unknown/invoke",
	})
	if err != nil {
		return false, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false, core.NewError(core.KindAuthInvalid, "bedrock", "signature rejected")
	}
	return true, nil
}
