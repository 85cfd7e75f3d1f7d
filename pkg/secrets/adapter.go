package secrets

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

var (
	ErrProviderUnavailable = errors.New("secret provider unavailable")
	ErrNotFound            = errors.New("secret not found")
)

const lookupTimeout = 10 * time.Second

type Provider interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// Adapter resolves a named token from a secret store. Without a fallback a
// miss in the store is an error.
type Adapter struct {
	store    Provider
	fallback Provider
}

// NewAdapter picks Vault when VAULT_ADDR is set, else AWS Secrets Manager when
// AWS_REGION is set. The environment is consulted on a miss unless
// SECRETS_REQUIRE_PRIMARY=true.
func NewAdapter(ctx context.Context) (*Adapter, error) {
	strict := strings.EqualFold(os.Getenv("SECRETS_REQUIRE_PRIMARY"), "true")
	store := detectStore(ctx)
	if store == nil && strict {
		return nil, errors.New("SECRETS_REQUIRE_PRIMARY is set but neither Vault nor AWS Secrets Manager is available")
	}
	a := &Adapter{store: store}
	if !strict {
		a.fallback = envProvider{}
	}
	return a, nil
}

func NewAdapterWith(store, fallback Provider) *Adapter {
	return &Adapter{store: store, fallback: fallback}
}

func detectStore(ctx context.Context) Provider {
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		if v, err := newVaultStore(ctx, addr); err == nil {
			return v
		}
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		if a, err := newAWSStore(ctx, region); err == nil {
			return a
		}
	}
	return nil
}

func (a *Adapter) GetSecret(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	if a.store != nil {
		v, err := a.store.GetSecret(ctx, key)
		if err == nil && v != "" {
			return v, nil
		}
		if a.fallback == nil {
			if err == nil {
				err = ErrNotFound
			}
			return "", errors.Wrapf(err, "secret %s", key)
		}
	}
	if a.fallback == nil {
		return "", ErrProviderUnavailable
	}
	return a.fallback.GetSecret(ctx, key)
}

// vaultStore reads KV v2 entries of the form {"value": "..."} below mount.
type vaultStore struct {
	client *vault.Client
	mount  string
}

func newVaultStore(ctx context.Context, addr string) (*vaultStore, error) {
	vc := vault.DefaultConfig()
	vc.Address = addr
	vc.Timeout = 5 * time.Second
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, err
	}
	token := os.Getenv("VAULT_TOKEN")
	if path := os.Getenv("VAULT_TOKEN_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read VAULT_TOKEN_FILE")
		}
		token = strings.TrimSpace(string(b))
	}
	if token != "" {
		client.SetToken(token)
	}
	hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Sys().HealthWithContext(hctx); err != nil {
		return nil, errors.Wrap(err, "vault health")
	}
	mount := os.Getenv("VAULT_SECRET_PATH")
	if mount == "" {
		mount = "secret/data/lyricbox"
	}
	return &vaultStore{client: client, mount: strings.TrimRight(mount, "/")}, nil
}

func (v *vaultStore) GetSecret(ctx context.Context, key string) (string, error) {
	s, err := v.client.Logical().ReadWithContext(ctx, v.mount+"/"+key)
	if err != nil {
		return "", err
	}
	if s == nil || s.Data == nil {
		return "", ErrNotFound
	}
	data, _ := s.Data["data"].(map[string]interface{})
	value, ok := data["value"].(string)
	if !ok {
		return "", errors.Errorf("vault entry %s has no string value", key)
	}
	return value, nil
}

type awsStore struct {
	client *secretsmanager.Client
}

func newAWSStore(ctx context.Context, region string) (*awsStore, error) {
	ac, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &awsStore{client: secretsmanager.NewFromConfig(ac)}, nil
}

func (a *awsStore) GetSecret(ctx context.Context, key string) (string, error) {
	out, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &key})
	if err != nil {
		return "", errors.Wrap(err, "secretsmanager")
	}
	if out.SecretString == nil {
		return "", errors.Errorf("secret %s is binary", key)
	}
	return *out.SecretString, nil
}

type envProvider struct{}

func (envProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", errors.Wrap(ErrNotFound, key)
	}
	return v, nil
}
