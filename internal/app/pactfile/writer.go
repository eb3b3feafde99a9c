package pactfile

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	ErrWrite    = errors.New("unable to write pact file")
	ErrConflict = errors.New("existing pact file does not belong to this pact")
)

var fileLocks sync.Map

func lockFile(path string) func() {
	value, _ := fileLocks.LoadOrStore(path, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Write writes pact to dir, merging with an existing file for the same
// consumer and provider unless overwrite is set. It returns the file path.
func Write(pact *model.Pact, dir string, overwrite bool) (string, error) {
	return write(pact.Consumer, pact.Provider, dir, overwrite, func(existing []byte) ([]byte, error) {
		if existing == nil {
			return marshalForWrite(Marshal(pact))
		}
		merged, err := mergePact(existing, pact)
		if err != nil {
			return nil, err
		}
		return marshalForWrite(Marshal(merged))
	})
}

// WriteMessages writes a message pact the same way Write does.
func WriteMessages(pact *model.MessagePact, dir string, overwrite bool) (string, error) {
	return write(pact.Consumer, pact.Provider, dir, overwrite, func(existing []byte) ([]byte, error) {
		if existing == nil {
			return marshalForWrite(MarshalMessages(pact))
		}
		merged, err := mergeMessages(existing, pact)
		if err != nil {
			return nil, err
		}
		return marshalForWrite(MarshalMessages(merged))
	})
}

func marshalForWrite(data []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, errors.Wrap(ErrWrite, err.Error())
	}
	return data, nil
}

// write renders the file through render, which receives the current file
// contents when they are to be merged and nil otherwise.
func write(consumer, provider, dir string, overwrite bool, render func(existing []byte) ([]byte, error)) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(ErrWrite, "create directory %s: %v", dir, err)
	}
	path := filepath.Join(dir, FileName(consumer, provider))
	unlock := lockFile(path)
	defer unlock()

	logger := log.WithFields(log.Fields{"path": path, "overwrite": overwrite})

	var existing []byte
	if !overwrite {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			existing = data
			logger.Debug("merging with existing pact file")
		case !os.IsNotExist(err):
			return "", errors.Wrapf(ErrWrite, "read %s: %v", path, err)
		}
	}

	data, err := render(existing)
	if err != nil {
		return "", err
	}
	if err := replaceFile(path, data); err != nil {
		return "", err
	}
	logger.Info("pact file written")
	return path, nil
}

// mergePact parses the existing file and merges pact into it by interaction
// description: matching interactions are replaced in place, the others are
// appended. The result takes the specification version of pact, so older
// interactions are rewritten in the new schema.
func mergePact(existing []byte, pact *model.Pact) (*model.Pact, error) {
	if err := checkExisting(existing, pact.Consumer, pact.Provider); err != nil {
		return nil, err
	}
	if holdsMessages(existing) {
		return nil, errors.Wrap(ErrConflict, "existing pact file holds messages")
	}
	previous, err := Unmarshal(existing)
	if err != nil {
		return nil, err
	}

	merged := pact.Clone()
	merged.Metadata = mergeMetadata(previous.Metadata, pact.Metadata)
	merged.Interactions = mergeByDescription(previous.Interactions, merged.Interactions,
		func(i *model.Interaction) string { return i.Description })
	return merged, nil
}

func mergeMessages(existing []byte, pact *model.MessagePact) (*model.MessagePact, error) {
	if err := checkExisting(existing, pact.Consumer, pact.Provider); err != nil {
		return nil, err
	}
	if holdsHTTP(existing) {
		return nil, errors.Wrap(ErrConflict, "existing pact file holds HTTP interactions")
	}
	previous, err := UnmarshalMessages(existing)
	if err != nil {
		return nil, err
	}

	merged := pact.Clone()
	merged.Metadata = mergeMetadata(previous.Metadata, pact.Metadata)
	merged.Messages = mergeByDescription(previous.Messages, merged.Messages,
		func(m *model.Message) string { return m.Description })
	return merged, nil
}

func checkExisting(existing []byte, consumer, provider string) error {
	if !gjson.ValidBytes(existing) {
		return errors.Wrap(ErrParse, "existing pact file is not valid JSON")
	}
	for field, name := range map[string]string{"consumer.name": consumer, "provider.name": provider} {
		if old := gjson.GetBytes(existing, field); old.Exists() && old.String() != name {
			return errors.Wrapf(ErrConflict, "%s is %q", field, old.String())
		}
	}
	return nil
}

func holdsMessages(data []byte) bool {
	if len(gjson.GetBytes(data, "messages").Array()) > 0 {
		return true
	}
	return gjson.GetBytes(data, `interactions.#(type=="`+TypeAsynchronousMessage+`")`).Exists()
}

func holdsHTTP(data []byte) bool {
	for _, item := range gjson.GetBytes(data, "interactions").Array() {
		if kind := item.Get("type").String(); kind == "" || kind == TypeSynchronousHTTP {
			return true
		}
	}
	return false
}

func mergeByDescription[T any](previous, fresh []T, description func(T) string) []T {
	byDescription := make(map[string]int, len(fresh))
	for n, item := range fresh {
		byDescription[description(item)] = n
	}

	used := make([]bool, len(fresh))
	out := make([]T, 0, len(previous)+len(fresh))
	for _, item := range previous {
		if n, ok := byDescription[description(item)]; ok {
			item = fresh[n]
			used[n] = true
		}
		out = append(out, item)
	}
	for n, item := range fresh {
		if !used[n] {
			out = append(out, item)
		}
	}
	return out
}

// mergeMetadata overlays current on previous. The generator entry is dropped
// so the running version is stamped.
func mergeMetadata(previous, current map[string]map[string]string) map[string]map[string]string {
	out := map[string]map[string]string{}
	for _, metadata := range []map[string]map[string]string{previous, current} {
		for namespace, values := range metadata {
			if out[namespace] == nil {
				out[namespace] = map[string]string{}
			}
			for name, value := range values {
				out[namespace][name] = value
			}
		}
	}
	if current[metadataGenerator] == nil {
		delete(out, metadataGenerator)
	}
	return out
}

// replaceFile writes data next to path and renames it into place, retrying
// the rename for filesystems that briefly hold the target open.
func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(ErrWrite, "create temporary file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(ErrWrite, "write %s: %v", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(ErrWrite, "close %s: %v", tmp.Name(), err)
	}

	err = retry.Do(
		func() error { return os.Rename(tmp.Name(), path) },
		retry.Attempts(3),
		retry.Delay(20*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return errors.Wrapf(ErrWrite, "rename to %s: %v", path, err)
	}
	return nil
}
