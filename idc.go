// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import (
	"encoding/asn1"
	"fmt"
)

// Object identifiers used by the Authenticode indirect-data content.
var (
	oidSpcIndirectDataContent = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	oidSpcPeImageDataObj      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
	oidSHA256                 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
)

// spcUUID is the fixed "class ID" carried inside every Authenticode
// SpcSerializedObject. It identifies the (empty) serialized object as
// referring to the image being signed, and is constant across every
// signed PE/COFF file.
var spcUUID = [16]byte{
	0xa6, 0xb5, 0x86, 0xd5, 0xb4, 0xa1, 0x24, 0x66,
	0xae, 0x05, 0xa2, 0x17, 0xda, 0x8e, 0x60, 0xd6,
}

// algorithmIdentifier mirrors pkix.AlgorithmIdentifier structurally,
// but is declared locally so the NULL parameters are always emitted
// explicitly (some decoders of Authenticode signatures reject an
// absent parameters field).
type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue
}

var asn1NULL = asn1.RawValue{FullBytes: []byte{0x05, 0x00}}

type digestInfo struct {
	DigestAlgorithm algorithmIdentifier
	Digest          []byte
}

type spcAttributeTypeAndOptionalValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

type spcIndirectDataContent struct {
	Data          spcAttributeTypeAndOptionalValue
	MessageDigest digestInfo
}

type spcSerializedObject struct {
	ClassID []byte
	Data    []byte
}

// explicitWrap marshals inner as a context-specific, constructed tag,
// i.e. "[tag] EXPLICIT <inner>" in ASN.1 notation.
func explicitWrap(tag int, inner []byte) ([]byte, error) {
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        tag,
		IsCompound: true,
		Bytes:      inner,
	})
}

// buildSpcPeImageData constructs the DER encoding of:
//
//	SpcPeImageData ::= SEQUENCE {
//	    flags  BIT STRING,           -- empty
//	    file   [0] EXPLICIT SpcLink  -- SpcLink = [2] EXPLICIT SpcSerializedObject
//	}
//
// where SpcSerializedObject carries the fixed spcUUID class ID and an
// empty data field.
func buildSpcPeImageData() ([]byte, error) {
	serializedObject, err := asn1.Marshal(spcSerializedObject{
		ClassID: spcUUID[:],
		Data:    []byte{},
	})
	if err != nil {
		return nil, fmt.Errorf("sbsign: marshal SpcSerializedObject: %w", err)
	}

	spcLink, err := explicitWrap(2, serializedObject)
	if err != nil {
		return nil, fmt.Errorf("sbsign: marshal SpcLink: %w", err)
	}

	file, err := explicitWrap(0, spcLink)
	if err != nil {
		return nil, fmt.Errorf("sbsign: marshal SpcPeImageData.file: %w", err)
	}

	type spcPeImageData struct {
		Flags asn1.BitString
		File  asn1.RawValue
	}
	der, err := asn1.Marshal(spcPeImageData{
		Flags: asn1.BitString{},
		File:  asn1.RawValue{FullBytes: file},
	})
	if err != nil {
		return nil, fmt.Errorf("sbsign: marshal SpcPeImageData: %w", err)
	}
	return der, nil
}

// buildIndirectDataContent constructs the DER encoding of
// SpcIndirectDataContent (spec.md §4.5) wrapping a SHA-256 digest. The
// result is handed to the signer as PKCS#7 eContent, tagged with
// content-type SPC_INDIRECT_DATA_OBJID.
func buildIndirectDataContent(digest [32]byte) ([]byte, error) {
	peImageData, err := buildSpcPeImageData()
	if err != nil {
		return nil, err
	}

	idc := spcIndirectDataContent{
		Data: spcAttributeTypeAndOptionalValue{
			Type:  oidSpcPeImageDataObj,
			Value: asn1.RawValue{FullBytes: peImageData},
		},
		MessageDigest: digestInfo{
			DigestAlgorithm: algorithmIdentifier{
				Algorithm:  oidSHA256,
				Parameters: asn1NULL,
			},
			Digest: digest[:],
		},
	}

	der, err := asn1.Marshal(idc)
	if err != nil {
		return nil, fmt.Errorf("sbsign: marshal SpcIndirectDataContent: %w", err)
	}
	return der, nil
}
