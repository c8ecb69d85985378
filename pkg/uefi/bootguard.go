// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

// Intel BootGuard Key Manifest and Boot Policy Manifest tags, as they
// appear at the start of the raw file body that carries them. Recognition
// is structural only: this package records which manifest a file looks
// like and its version/SVN fields, and never attempts RSA signature
// verification.
var (
	bgKeyManifestTag        = [8]byte{'_', '_', 'K', 'E', 'Y', 'M', '_', '_'}
	bgBootPolicyManifestTag = [8]byte{'_', '_', 'A', 'C', 'B', 'P', '_', '_'}
)

// BootGuardManifestKind identifies which BootGuard manifest a file body
// looks like.
type BootGuardManifestKind int

// Recognized BootGuard manifest kinds.
const (
	BootGuardManifestNone BootGuardManifestKind = iota
	BootGuardKeyManifest
	BootGuardBootPolicyManifest
)

// BootGuardManifestInfo is the structural summary recorded for a file
// whose body starts with a recognized BootGuard manifest tag.
type BootGuardManifestInfo struct {
	Kind      BootGuardManifestKind
	Version   uint8
	SubVer    uint8 // KmVersion for a Key Manifest, HeaderVersion for a BPM.
	SVN       uint8 // KmSvn for a Key Manifest, BPSVN for a BPM.
}

// IdentifyBootGuardManifest inspects a file body and returns its
// BootGuardManifestInfo, or a zero-value info with Kind
// BootGuardManifestNone if the body doesn't start with a recognized tag.
func IdentifyBootGuardManifest(body []byte) BootGuardManifestInfo {
	if len(body) < 12 {
		return BootGuardManifestInfo{}
	}
	var tag [8]byte
	copy(tag[:], body[:8])
	switch tag {
	case bgKeyManifestTag:
		return BootGuardManifestInfo{
			Kind:    BootGuardKeyManifest,
			Version: body[8],
			SubVer:  body[9],
			SVN:     body[10],
		}
	case bgBootPolicyManifestTag:
		return BootGuardManifestInfo{
			Kind:    BootGuardBootPolicyManifest,
			Version: body[8],
			SubVer:  body[9],
			SVN:     body[11],
		}
	}
	return BootGuardManifestInfo{}
}

func (k BootGuardManifestKind) String() string {
	switch k {
	case BootGuardKeyManifest:
		return "Intel BootGuard Key Manifest"
	case BootGuardBootPolicyManifest:
		return "Intel BootGuard Boot Policy Manifest"
	}
	return "none"
}
