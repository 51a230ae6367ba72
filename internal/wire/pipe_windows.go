//go:build windows

package wire

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// NewListenPipeSecurityAttributes builds the SECURITY_ATTRIBUTES for
// the server's named pipe: read/write/execute for Authenticated
// Users, Administrators, and AppContainer packages (so a packaged
// client can connect), with explicit deny ACEs for Guests and
// ANONYMOUS LOGON.
func NewListenPipeSecurityAttributes() (*windows.SecurityAttributes, error) {
	sd, err := buildPipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}
	return &windows.SecurityAttributes{
		Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		SecurityDescriptor: sd,
		InheritHandle:      0,
	}, nil
}

func buildPipeSecurityDescriptor() (*windows.SECURITY_DESCRIPTOR, error) {
	sd, err := windows.NewSecurityDescriptor()
	if err != nil {
		return nil, fmt.Errorf("wire: NewSecurityDescriptor failed: %w", err)
	}

	rights := uint32(windows.GENERIC_READ | windows.GENERIC_WRITE | windows.GENERIC_EXECUTE)

	entries := []windows.EXPLICIT_ACCESS{
		newExplicitAccess(rights, windows.GRANT_ACCESS, wellKnownSID(windows.WinAuthenticatedUserSid)),
		newExplicitAccess(rights, windows.GRANT_ACCESS, wellKnownSID(windows.WinBuiltinAdministratorsSid)),
		newExplicitAccess(rights, windows.GRANT_ACCESS, wellKnownSID(windows.WinBuiltinAnyPackageSid)),
		newExplicitAccess(rights, windows.DENY_ACCESS, wellKnownSID(windows.WinGuestSid)),
		newExplicitAccess(rights, windows.DENY_ACCESS, wellKnownSID(windows.WinAnonymousSid)),
	}

	acl, err := windows.ACLFromEntries(entries, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: ACLFromEntries failed: %w", err)
	}
	if err := sd.SetDACL(acl, true, false); err != nil {
		return nil, fmt.Errorf("wire: SetDACL failed: %w", err)
	}
	return sd, nil
}

func newExplicitAccess(rights uint32, mode windows.ACCESS_MODE, sid *windows.SID) windows.EXPLICIT_ACCESS {
	return windows.EXPLICIT_ACCESS{
		AccessPermissions: windows.ACCESS_MASK(rights),
		AccessMode:        mode,
		Inheritance:       windows.NO_INHERITANCE,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_WELL_KNOWN_GROUP,
			TrusteeValue: windows.TrusteeValueFromSID(sid),
		},
	}
}

func wellKnownSID(kind windows.WELL_KNOWN_SID_TYPE) *windows.SID {
	sid, err := windows.CreateWellKnownSid(kind)
	if err != nil {
		// A well-known SID lookup failing indicates a broken host, not a
		// recoverable condition; fall back to the Everyone SID so the
		// pipe still gets a DACL rather than none at all.
		sid, _ = windows.CreateWellKnownSid(windows.WinWorldSid)
	}
	return sid
}
