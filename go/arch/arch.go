package arch

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/lunixbochs/corral/go/models"
	"github.com/lunixbochs/corral/go/models/cpu"
)

var (
	archLock sync.RWMutex
	archMap  = make(map[int]*models.Arch)
)

// Register makes an architecture available to Get. Engine packages call it from init.
// Registering the same enum twice replaces the earlier entry, so a native engine can
// take over from a simulated one.
func Register(a *models.Arch) {
	if a == nil || a.Cpu == nil || len(a.Modes) == 0 {
		panic("arch: invalid registration")
	}
	archLock.Lock()
	defer archLock.Unlock()
	archMap[a.Enum] = a
}

func Get(enum int) (*models.Arch, error) {
	archLock.RLock()
	defer archLock.RUnlock()
	if a, ok := archMap[enum]; ok {
		return a, nil
	}
	return nil, cpu.ERR_ARCH
}

func Supported(enum int) bool {
	_, err := Get(enum)
	return err == nil
}

func ByName(name string) (*models.Arch, error) {
	archLock.RLock()
	defer archLock.RUnlock()
	for _, a := range archMap {
		if strings.EqualFold(a.Name, name) {
			return a, nil
		}
	}
	return nil, errors.Wrapf(cpu.ERR_ARCH, "arch %q not found", name)
}

// All lists registered architectures sorted by name.
func All() []*models.Arch {
	archLock.RLock()
	defer archLock.RUnlock()
	ret := make([]*models.Arch, 0, len(archMap))
	for _, a := range archMap {
		ret = append(ret, a)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}
