// Copyright 2019 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package knownguids contains a list of well-known firmware GUIDs and their
// human-readable names, for the table/scan visitors to label volumes and
// files the way their FFS names suggest rather than as bare hex.
package knownguids

import "github.com/linuxboot/fiano/pkg/guid"

// GUIDs maps a GUID to the name it's known by in EDK2 and the wider UEFI
// firmware ecosystem.
var GUIDs = map[guid.GUID]string{
	*guid.MustParse("7A9354D9-0468-444A-81CE-0BF617D890DF"): "EFI_FIRMWARE_FILE_SYSTEM_GUID",
	*guid.MustParse("8C8CE578-8A3D-4F1C-9935-896185C32DD3"): "EFI_FIRMWARE_FILE_SYSTEM2_GUID",
	*guid.MustParse("5473C07A-3DCB-4DCA-BD6F-1E9689E7349A"): "EFI_FIRMWARE_FILE_SYSTEM3_GUID",
	*guid.MustParse("FFF12B8D-7696-4C8B-A985-2747075B4F50"): "EFI_VARIABLE_GUID",
	*guid.MustParse("CEF5B9A3-476D-497F-9FDC-E98143E0422C"): "NVAR_NVRAM_GUID",
	*guid.MustParse("00504624-8A59-4EEB-BD0F-6B36E96128E0"): "EFI_VARIABLE_GUID2",
	*guid.MustParse("04ADEEAD-61FF-4D31-B6BA-64F8BF901F5A"): "APPLE_BOOT_VOLUME_GUID",
	*guid.MustParse("16B45DA2-7D70-4AEA-A58D-760E9ECB841D"): "EFI_PEI_FV_HANDOFF_GUID",
	*guid.MustParse("E360BDBA-C3CE-46BE-8F37-B231E5CB9F35"): "EFI_PEI_FV_HANDOFF_GUID2",
	*guid.MustParse("FC1BCDB0-7D31-49AA-936A-A4600D9DD083"): "EFI_CRC32_GUIDED_SECTION_EXTRACTION_PROTOCOL_GUID",
	*guid.MustParse("EE4E5898-3914-4259-9D6E-DC7BD79403CF"): "LZMA_CUSTOM_DECOMPRESS_GUID",
	*guid.MustParse("CE3233F5-2CD6-4D87-9152-4A238BB6D1C3"): "BROTLI_CUSTOM_DECOMPRESS_GUID",
	*guid.MustParse("A31280AD-481E-41B6-95E8-127F4C984779"): "EFI_FIRMWARE_VOLUME_TOP_FILE_GUID",
	*guid.MustParse("1BA0062E-C779-4582-8566-336AE8F78F09"): "EFI_DXE_SERVICES_TABLE_GUID",
	*guid.MustParse("5AEA1B4B-421C-4015-8A3E-6DC7C46F4EE0"): "EFI_DXE_CORE_FILE_NAME_GUID",
	*guid.MustParse("9E21FD93-9C72-4C15-8C4B-E77F1DB2D792"): "EFI_PEI_CORE_FILE_NAME_GUID",
	*guid.MustParse("1A1E4886-9517-440E-9FDE-3BE44CEE2136"): "SMM_CORE_FILE_NAME_GUID",
}
