package session

import (
	"fmt"

	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
)

// AppVersion is one entry of the device's app-version table, per §4.8.
type AppVersion struct {
	AppletID uint32
	Version  Version
}

// AppVersionParser decodes a raw AppVersionCmd reply payload into the
// table of installed applets. The wire schema of this reply is an
// application-layer concern this module treats as opaque (per spec.md §1,
// "the structured-message schema of application replies" is out of
// scope), so this type is declared for callers to implement. Session does
// not fetch the table or accept a parser: a caller decodes the reply with
// its own parser and stores the result with CacheAppVersions, and Session
// owns only the caching and compatibility-check logic.
type AppVersionParser func(payload []byte) ([]AppVersion, error)

// CacheAppVersions stores a freshly fetched app-version table, replacing
// whatever a previous CacheAppVersions call stored for these applets.
func (s *Session) CacheAppVersions(versions []AppVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range versions {
		s.appVersions[v.AppletID] = v
	}
}

// AppVersionFor returns the cached version for an applet id, if any.
func (s *Session) AppVersionFor(appletID uint32) (Version, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.appVersions[appletID]
	return v.Version, ok
}

// CheckAppCompatibility asserts that the cached version for appletID falls
// in [from, to). A zero-value to means no upper bound. Returns
// deviceerrors.ErrDeviceNotSupported if no version is cached yet, or if the
// cached version falls outside the given range.
func (s *Session) CheckAppCompatibility(appletID uint32, from, to Version) error {
	v, ok := s.AppVersionFor(appletID)
	if !ok {
		return deviceerrors.ErrDeviceNotSupported.WithCause(
			fmt.Errorf("session: no cached app version for applet %d; call CacheAppVersions first", appletID))
	}
	if !v.InRange(from, to) {
		return deviceerrors.ErrDeviceNotSupported.WithCause(
			fmt.Errorf("session: applet %d version %s is outside supported range [%s, %s)", appletID, v, from, to))
	}
	return nil
}
