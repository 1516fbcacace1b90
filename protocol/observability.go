// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package protocol

import "encoding/binary"

// AisleInfo is a read-only snapshot decoded from an AISLE_INFO (0x11)
// frame. It exists purely for observability (logging/metrics) — there is
// no corresponding write path in this engine; SET_AISLE_* remain wire
// constants only, consistent with the pricing/inventory-editing Non-goal.
type AisleInfo struct {
	Aisle          uint16
	Price          uint16
	Inventory      uint8
	Capacity       uint8
	CommodityNum   uint8
	Paused         bool
}

// decodeAisleInfo parses comm_num(1) || aisle(2) || price(2) || inventory(1)
// || capacity(1) || commodity(1) || flags(1). The vendor protocol
// documentation available to this implementation does not pin this layout
// down precisely (spec.md is silent beyond the data model's attribute
// list); a too-short payload is logged and skipped rather than guessed at.
func decodeAisleInfo(text []byte) (AisleInfo, bool) {
	const wantLen = 1 + 2 + 2 + 1 + 1 + 1 + 1
	if len(text) < wantLen {
		return AisleInfo{}, false
	}
	return AisleInfo{
		Aisle:        binary.BigEndian.Uint16(text[1:3]),
		Price:        binary.BigEndian.Uint16(text[3:5]),
		Inventory:    text[5],
		Capacity:     text[6],
		CommodityNum: text[7],
		Paused:       text[8]&0x01 != 0,
	}, true
}

func (e *Engine) handleAisleInfo(text []byte) {
	info, ok := decodeAisleInfo(text)
	if !ok {
		e.log.Debug().Int("len", len(text)).Msg("AISLE_INFO payload too short to decode, ACKing anyway")
		return
	}
	e.log.Info().
		Uint16("aisle", info.Aisle).
		Uint16("price", info.Price).
		Uint8("inventory", info.Inventory).
		Uint8("capacity", info.Capacity).
		Uint8("commodity", info.CommodityNum).
		Bool("paused", info.Paused).
		Msg("aisle info")
}

func (e *Engine) handleMachineStatusResponse(text []byte) {
	if len(text) < 1 {
		return
	}
	// Beyond the comm_num prefix, the remaining bytes are an opaque machine
	// status payload: logged as a hex blob for diagnostics, never
	// interpreted or surfaced to callers.
	e.log.Info().Hex("payload", text[1:]).Msg("machine status response")
}
