// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"bytes"

	"github.com/omec-project/ngap/ngapType"
)

// AmfContext holds what the AMF announced in NG Setup and its overload
// state.
type AmfContext struct {
	AMFName             *ngapType.AMFName
	ServedGUAMIList     *ngapType.ServedGUAMIList
	RelativeAMFCapacity *ngapType.RelativeAMFCapacity
	PLMNSupportList     *ngapType.PLMNSupportList
	// Overload related
	AMFOverloadContent *AMFOverloadContent
}

// AMFOverloadContent is the last Overload Start received.
type AMFOverloadContent struct {
	Action     *ngapType.OverloadAction
	TrafficInd *int64
	Slices     []SliceOverload
}

type SliceOverload struct {
	Snssais    []ngapType.SNSSAI
	Action     *ngapType.OverloadAction
	TrafficInd *int64
}

func (amf *AmfContext) Name() string {
	if amf == nil || amf.AMFName == nil {
		return ""
	}
	return amf.AMFName.Value
}

// StartOverload records an Overload Start. A message without any IE still
// marks the AMF as overloaded.
func (amf *AmfContext) StartOverload(
	resp *ngapType.OverloadResponse, reduction *ngapType.TrafficLoadReductionIndication,
	nssai *ngapType.OverloadStartNSSAIList,
) *AMFOverloadContent {
	content := &AMFOverloadContent{}
	if resp != nil {
		content.Action = resp.OverloadAction
	}
	if reduction != nil {
		content.TrafficInd = &reduction.Value
	}
	if nssai != nil {
		content.Slices = make([]SliceOverload, 0, len(nssai.List))
		for i := range nssai.List {
			content.Slices = append(content.Slices, sliceOverload(&nssai.List[i]))
		}
	}
	amf.AMFOverloadContent = content
	return content
}

func sliceOverload(item *ngapType.OverloadStartNSSAIItem) SliceOverload {
	so := SliceOverload{}
	for _, s := range item.SliceOverloadList.List {
		so.Snssais = append(so.Snssais, s.SNSSAI)
	}
	if item.SliceOverloadResponse != nil {
		so.Action = item.SliceOverloadResponse.OverloadAction
	}
	if item.SliceTrafficLoadReductionIndication != nil {
		so.TrafficInd = &item.SliceTrafficLoadReductionIndication.Value
	}
	return so
}

func (amf *AmfContext) StopOverload() {
	amf.AMFOverloadContent = nil
}

// Overloaded reports whether the AMF asked to reduce signalling.
func (amf *AmfContext) Overloaded() bool {
	return amf != nil && amf.AMFOverloadContent != nil
}

// SupportsPLMN reports whether the AMF serves the PLMN.
func (amf *AmfContext) SupportsPLMN(plmn ngapType.PLMNIdentity) bool {
	if amf == nil || amf.PLMNSupportList == nil {
		return false
	}
	for _, item := range amf.PLMNSupportList.List {
		if bytes.Equal(item.PLMNIdentity.Value, plmn.Value) {
			return true
		}
	}
	return false
}
