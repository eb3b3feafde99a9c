package configuration

import (
	"os"
	"path/filepath"

	"github.com/form3tech-oss/pact-mock-server/internal/app/mockserver"
	"github.com/form3tech-oss/pact-mock-server/internal/app/pactfile"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrInvalidMocks = errors.New("invalid mocks file")

// MockDefinition describes a mock server to start from a pact file.
type MockDefinition struct {
	Pact    string `yaml:"pact"`
	Address string `yaml:"address"`
	TLS     bool   `yaml:"tls"`
}

type mocksFile struct {
	Mocks []MockDefinition `yaml:"mocks"`
}

// LoadMocks reads a YAML mocks file. Relative pact paths are resolved against
// the directory of the mocks file.
func LoadMocks(path string) ([]MockDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read mocks file %s", path)
	}

	var file mocksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(ErrInvalidMocks, "%s: %v", path, err)
	}

	base := filepath.Dir(path)
	for i := range file.Mocks {
		mock := &file.Mocks[i]
		if mock.Pact == "" {
			return nil, errors.Wrapf(ErrInvalidMocks, "mock %d has no pact", i)
		}
		if !filepath.IsAbs(mock.Pact) {
			mock.Pact = filepath.Join(base, mock.Pact)
		}
		if mock.Address == "" {
			mock.Address = "127.0.0.1:0"
		}
	}
	return file.Mocks, nil
}

// StartMocks starts a mock server for every definition. Servers already
// started are stopped again if a later one fails.
func StartMocks(mocks []MockDefinition, config Config) ([]*mockserver.Server, error) {
	var started []*mockserver.Server
	for _, mock := range mocks {
		server, err := startMock(mock, config)
		if err != nil {
			for _, s := range started {
				mockserver.Cleanup(s.Port())
			}
			return nil, err
		}
		started = append(started, server)
	}
	return started, nil
}

func startMock(mock MockDefinition, config Config) (*mockserver.Server, error) {
	data, err := os.ReadFile(mock.Pact)
	if err != nil {
		return nil, errors.Wrapf(err, "read pact %s", mock.Pact)
	}
	pact, err := pactfile.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "pact %s", mock.Pact)
	}

	server, err := mockserver.Start(pact, mockserver.Options{
		Address:      mock.Address,
		TLS:          mock.TLS,
		DrainTimeout: config.DrainTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "start mock server for %s", mock.Pact)
	}
	log.WithFields(log.Fields{"pact": mock.Pact, "url": server.URL()}).Info("mock server started from mocks file")
	return server, nil
}
