package sysroot

import (
	"bytes"
	"os"
	"sort"

	"github.com/go-ini/ini"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/sysroot/status"
	"github.com/spf13/afero"
)

const (
	originSection = "origin"
	keyRefspec    = "refspec"
)

// readOrigin loads the origin file of a deployment. A missing origin file yields a nil origin.
func (s *Sysroot) readOrigin(d *model.Deployment) (*model.Origin, error) {
	data, err := afero.ReadFile(s.fs, d.OriginPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, status.ErrOrigin.Wrap(err)
	}
	return parseOrigin(data)
}

func parseOrigin(data []byte) (*model.Origin, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, status.ErrOrigin.Wrap(err)
	}
	section, err := f.GetSection(originSection)
	if err != nil {
		return nil, status.ErrOrigin.WrapMessage("no [%s] section", originSection)
	}
	origin := &model.Origin{}
	for _, key := range section.Keys() {
		if key.Name() == keyRefspec {
			origin.Refspec = key.Value()
			continue
		}
		if origin.Extra == nil {
			origin.Extra = make(map[string]string)
		}
		origin.Extra[key.Name()] = key.Value()
	}
	if origin.Refspec != "" {
		if _, err := model.ParseRefspec(origin.Refspec); err != nil {
			return nil, status.ErrOrigin.Wrap(err)
		}
	}
	return origin, nil
}

func encodeOrigin(origin *model.Origin) ([]byte, error) {
	f := ini.Empty()
	section, err := f.NewSection(originSection)
	if err != nil {
		return nil, err
	}
	if _, err = section.NewKey(keyRefspec, origin.Refspec); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(origin.Extra))
	for k := range origin.Extra {
		if k != keyRefspec {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err = section.NewKey(k, origin.Extra[k]); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err = f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Sysroot) writeOrigin(d *model.Deployment, origin *model.Origin) error {
	if origin == nil {
		return nil
	}
	data, err := encodeOrigin(origin)
	if err != nil {
		return status.ErrOrigin.Wrap(err)
	}
	return s.writeFileAtomic(d.OriginPath(), data)
}
