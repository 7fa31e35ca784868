package model

import (
	"fmt"
)

// Deployment is a checked out commit listed in the boot menu
type Deployment struct {
	Index        int    `json:"index" yaml:"index"`
	OSName       string `json:"osname" yaml:"osname"`
	Checksum     string `json:"checksum" yaml:"checksum"`
	DeploySerial int    `json:"serial" yaml:"serial"`
	BootChecksum string `json:"bootcsum" yaml:"bootcsum"`
	BootSerial   int    `json:"bootserial" yaml:"bootserial"`

	// Origin is loaded from the origin file next to the deployment directory
	Origin *Origin `json:"-" yaml:"-"`
	_      struct{}
}

// Origin records where a deployment comes from, so it may be upgraded
type Origin struct {
	Refspec string
	Extra   map[string]string
}

// Dir is the sysroot-relative directory of the deployment
func (d *Deployment) Dir() string {
	return DeploymentDir(d.OSName, d.Checksum, d.DeploySerial)
}

// OriginPath is the sysroot-relative path of the origin file
func (d *Deployment) OriginPath() string {
	return OriginPath(d.OSName, d.Checksum, d.DeploySerial)
}

// Same deployment, regardless of its position in the boot menu
func (d *Deployment) Same(o *Deployment) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.OSName == o.OSName && d.Checksum == o.Checksum && d.DeploySerial == o.DeploySerial
}

// Clone the deployment
func (d *Deployment) Clone() *Deployment {
	c := &Deployment{
		Index:        d.Index,
		OSName:       d.OSName,
		Checksum:     d.Checksum,
		DeploySerial: d.DeploySerial,
		BootChecksum: d.BootChecksum,
		BootSerial:   d.BootSerial,
	}
	c.Origin = d.Origin.Clone()
	return c
}

// Clone the origin. A nil origin clones to nil.
func (o *Origin) Clone() *Origin {
	if o == nil {
		return nil
	}
	c := &Origin{Refspec: o.Refspec}
	if o.Extra != nil {
		c.Extra = make(map[string]string, len(o.Extra))
		for k, v := range o.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

func (d *Deployment) String() string {
	return fmt.Sprintf("%s %s.%d", d.OSName, d.Checksum, d.DeploySerial)
}

// DeploymentList is the boot menu, persisted in a loader directory
type DeploymentList struct {
	BootVersion int           `yaml:"bootversion"`
	Deployments []*Deployment `yaml:"deployments"`
}
