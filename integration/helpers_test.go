//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
)

const bundleMediaType = "application/vnd.tangram.scene.bundle.v1+zip"

// --- Registry Container Setup ---

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the container if needed.
// The container is shared across all tests.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})

	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}

	return registryAddr
}

// startRegistryContainer starts a registry:2 container and returns the host:port address.
func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Artifact Helpers ---

type layer struct {
	title string
	data  []byte
}

// pushScene builds a scene artifact in memory and copies it to
// registryAddr/repo:tag. It returns the oci:// location of the artifact.
func pushScene(tb testing.TB, registryAddr, repo, tag string, layers ...layer) string {
	tb.Helper()
	ctx := context.Background()
	store := memory.New()

	push := func(desc ocispec.Descriptor, data []byte) {
		tb.Helper()
		err := store.Push(ctx, desc, bytes.NewReader(data))
		if err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
			require.NoError(tb, err)
		}
	}

	push(ocispec.DescriptorEmptyJSON, ocispec.DescriptorEmptyJSON.Data)
	manifest := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: "application/vnd.tangram.scene.v1",
		Config:       ocispec.DescriptorEmptyJSON,
	}
	for _, l := range layers {
		desc := content.NewDescriptorFromBytes(bundleMediaType, l.data)
		desc.Annotations = map[string]string{ocispec.AnnotationTitle: l.title}
		push(desc, l.data)
		manifest.Layers = append(manifest.Layers, desc)
	}
	raw, err := json.Marshal(manifest)
	require.NoError(tb, err)
	manifestDesc := content.NewDescriptorFromBytes(ocispec.MediaTypeImageManifest, raw)
	push(manifestDesc, raw)
	require.NoError(tb, store.Tag(ctx, manifestDesc, tag))

	repository, err := remote.NewRepository(registryAddr + "/" + repo)
	require.NoError(tb, err)
	repository.PlainHTTP = true
	_, err = oras.Copy(ctx, store, tag, repository, tag, oras.DefaultCopyOptions)
	require.NoError(tb, err)

	return fmt.Sprintf("oci://%s/%s:%s", registryAddr, repo, tag)
}
