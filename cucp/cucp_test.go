// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package cucp

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/omec-project/aper"
	gnb_context "github.com/omec-project/gnb/context"
	"github.com/omec-project/gnb/e1ap"
	"github.com/omec-project/gnb/f1ap"
	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/gateway"
	ngap_message "github.com/omec-project/gnb/ngap/message"
	"github.com/omec-project/gnb/rrc"
	"github.com/omec-project/gnb/support/transaction"
	"github.com/omec-project/gnb/util"
	"github.com/omec-project/ngap/ngapType"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGnbId       = 0x19b
	waitTimeout     = 2 * time.Second
	quietPeriod     = 50 * time.Millisecond
	testAmfUeNgapId = 7
)

var testPlmn = factory.PlmnId{Mcc: "001", Mnc: "01"}

func testConfig() factory.CuCpConfig {
	return factory.CuCpConfig{
		Enable:           true,
		GnbId:            testGnbId,
		GnbIdBitLength:   22,
		RanNodeName:      "test-gnb",
		Plmn:             testPlmn,
		Tac:              1,
		Slices:           []factory.Snssai{{Sst: 1, Sd: "010203"}},
		MaxNofDus:        2,
		MaxNofCuUps:      2,
		MaxNofUes:        64,
		NgSetupTimeout:   time.Second,
		ProcedureTimeout: time.Second,
	}
}

func testCell(cellIdx uint64) f1ap.ServedCell {
	return f1ap.ServedCell{
		NrCgi: f1ap.NrCgi{
			Plmn:     util.PlmnIdToBytes(testPlmn),
			NrCellId: testGnbId<<(f1ap.NrCellIdBitLength-22) | cellIdx,
		},
		Pci: uint16(cellIdx),
		Tac: 1,
	}
}

// mockAmf answers NG Setup Requests with queued PDUs and records everything
// the gNB sends.
type mockAmf struct {
	mu        sync.Mutex
	responses []*ngapType.NGAPPDU
	received  []*ngapType.NGAPPDU
	tx        gateway.MessageNotifier[*ngapType.NGAPPDU]
	rxCh      chan *ngapType.NGAPPDU
}

func newMockAmf() *mockAmf {
	return &mockAmf{rxCh: make(chan *ngapType.NGAPPDU, 64)}
}

func (a *mockAmf) enqueue(pdu *ngapType.NGAPPDU) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses = append(a.responses, pdu)
}

func (a *mockAmf) HandleNewConnection(tx gateway.MessageNotifier[*ngapType.NGAPPDU]) gateway.RxNotifier[*ngapType.NGAPPDU] {
	a.mu.Lock()
	a.tx = tx
	a.mu.Unlock()
	return a
}

func (a *mockAmf) OnNewMessage(pdu *ngapType.NGAPPDU) {
	a.mu.Lock()
	a.received = append(a.received, pdu)
	var resp *ngapType.NGAPPDU
	if isInitiating(pdu, ngapType.ProcedureCodeNGSetup) && len(a.responses) > 0 {
		resp = a.responses[0]
		a.responses = a.responses[1:]
	}
	tx := a.tx
	a.mu.Unlock()
	a.rxCh <- pdu
	if resp != nil {
		tx.OnNewMessage(resp)
	}
}

func (a *mockAmf) OnConnectionLoss() {}

func (a *mockAmf) send(pdu *ngapType.NGAPPDU) {
	a.mu.Lock()
	tx := a.tx
	a.mu.Unlock()
	tx.OnNewMessage(pdu)
}

func (a *mockAmf) nofReceived() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.received)
}

func (a *mockAmf) next(t *testing.T) *ngapType.NGAPPDU {
	t.Helper()
	select {
	case pdu := <-a.rxCh:
		return pdu
	case <-time.After(waitTimeout):
		require.FailNow(t, "no NGAP PDU received")
	}
	return nil
}

func isInitiating(pdu *ngapType.NGAPPDU, code int64) bool {
	return pdu.Present == ngapType.NGAPPDUPresentInitiatingMessage &&
		pdu.InitiatingMessage.ProcedureCode.Value == code
}

func isSuccessful(pdu *ngapType.NGAPPDU, code int64) bool {
	return pdu.Present == ngapType.NGAPPDUPresentSuccessfulOutcome &&
		pdu.SuccessfulOutcome.ProcedureCode.Value == code
}

func ranUeNgapIdOf(t *testing.T, pdu *ngapType.NGAPPDU) int64 {
	t.Helper()
	require.True(t, isInitiating(pdu, ngapType.ProcedureCodeInitialUEMessage))
	for _, ie := range pdu.InitiatingMessage.Value.InitialUEMessage.ProtocolIEs.List {
		if ie.Id.Value == ngapType.ProtocolIEIDRANUENGAPID {
			return ie.Value.RANUENGAPID.Value
		}
	}
	require.FailNow(t, "InitialUEMessage without RAN UE NGAP ID")
	return 0
}

// mockDu is the DU end of an F1-C association.
type mockDu struct {
	tx   gateway.MessageNotifier[*f1ap.Pdu]
	rxCh chan *f1ap.Pdu
	lost chan struct{}
}

func (d *mockDu) OnNewMessage(pdu *f1ap.Pdu) { d.rxCh <- pdu }
func (d *mockDu) OnConnectionLoss()          { close(d.lost) }

func connectDu(c *CuCp) (*mockDu, error) {
	du := &mockDu{rxCh: make(chan *f1ap.Pdu, 64), lost: make(chan struct{})}
	tx, err := gateway.NewLocalConnector(c.F1cHandler()).Connect(du)
	if err != nil {
		return nil, err
	}
	du.tx = tx
	return du, nil
}

func (d *mockDu) send(pdu *f1ap.Pdu) { d.tx.OnNewMessage(pdu) }

func (d *mockDu) close(t *testing.T) {
	closer, ok := d.tx.(io.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
}

func (d *mockDu) next(t *testing.T) *f1ap.Pdu {
	t.Helper()
	select {
	case pdu := <-d.rxCh:
		return pdu
	case <-time.After(waitTimeout):
		require.FailNow(t, "no F1AP PDU received")
	}
	return nil
}

func (d *mockDu) setup(t *testing.T, duId uint64, cells ...f1ap.ServedCell) *f1ap.Pdu {
	t.Helper()
	d.send(&f1ap.Pdu{F1SetupRequest: &f1ap.F1SetupRequest{
		TransactionId: 1,
		GnbDuId:       duId,
		GnbDuName:     "du",
		ServedCells:   cells,
	}})
	return d.next(t)
}

// mockCuUp is the CU-UP end of an E1 association. It answers bearer
// context requests at once.
type mockCuUp struct {
	tx   gateway.MessageNotifier[*e1ap.Pdu]
	rxCh chan *e1ap.Pdu
	// silent CU-UPs never answer bearer context requests.
	silent bool
}

func (u *mockCuUp) OnConnectionLoss() {}

func (u *mockCuUp) OnNewMessage(pdu *e1ap.Pdu) {
	u.rxCh <- pdu
	if u.silent {
		return
	}
	switch {
	case pdu.BearerContextSetupRequest != nil:
		req := pdu.BearerContextSetupRequest
		resp := &e1ap.BearerContextSetupResponse{GnbCuCpUeE1apId: req.GnbCuCpUeE1apId, GnbCuUpUeE1apId: 100}
		for _, s := range req.PduSessions {
			setup := e1ap.PduSessionSetup{
				PduSessionId:  s.PduSessionId,
				NgDlUpTnlInfo: e1ap.UpTnlInfo{Addr: "127.0.1.1", Port: factory.GTPU_PORT, Teid: 0x10},
			}
			for _, d := range s.Drbs {
				setup.Drbs = append(setup.Drbs, e1ap.DrbSetup{
					DrbId:       d.DrbId,
					UlUpTnlInfo: e1ap.UpTnlInfo{Addr: "127.0.2.1", Port: factory.GTPU_PORT, Teid: 0x20},
					QosFlows:    d.QosFlows,
				})
			}
			resp.PduSessions = append(resp.PduSessions, setup)
		}
		u.tx.OnNewMessage(&e1ap.Pdu{BearerContextSetupResponse: resp})
	case pdu.BearerContextModificationRequest != nil:
		req := pdu.BearerContextModificationRequest
		resp := &e1ap.BearerContextModificationResponse{
			GnbCuCpUeE1apId: req.GnbCuCpUeE1apId,
			GnbCuUpUeE1apId: req.GnbCuUpUeE1apId,
		}
		for _, d := range req.DrbsToModify {
			resp.DrbsModified = append(resp.DrbsModified, d.DrbId)
		}
		u.tx.OnNewMessage(&e1ap.Pdu{BearerContextModificationResponse: resp})
	case pdu.BearerContextReleaseCommand != nil:
		cmd := pdu.BearerContextReleaseCommand
		u.tx.OnNewMessage(&e1ap.Pdu{BearerContextReleaseComplete: &e1ap.BearerContextReleaseComplete{
			GnbCuCpUeE1apId: cmd.GnbCuCpUeE1apId,
			GnbCuUpUeE1apId: cmd.GnbCuUpUeE1apId,
		}})
	}
}

func (u *mockCuUp) next(t *testing.T) *e1ap.Pdu {
	t.Helper()
	select {
	case pdu := <-u.rxCh:
		return pdu
	case <-time.After(waitTimeout):
		require.FailNow(t, "no E1AP PDU received")
	}
	return nil
}

func connectCuUp(t *testing.T, c *CuCp, silent bool) (*mockCuUp, *e1ap.Pdu) {
	t.Helper()
	u := &mockCuUp{rxCh: make(chan *e1ap.Pdu, 64), silent: silent}
	tx, err := gateway.NewLocalConnector(c.E1Handler()).Connect(u)
	require.NoError(t, err)
	u.tx = tx
	tx.OnNewMessage(&e1ap.Pdu{GnbCuUpE1SetupRequest: &e1ap.GnbCuUpE1SetupRequest{
		TransactionId: 3,
		GnbCuUpId:     1,
		GnbCuUpName:   "cu-up",
	}})
	return u, u.next(t)
}

func newTestCuCp(t *testing.T, cfg factory.CuCpConfig) (*CuCp, *mockAmf) {
	amf := newMockAmf()
	c := New(cfg, gateway.NewLocalConnector[*ngapType.NGAPPDU](amf))
	t.Cleanup(c.Stop)
	return c, amf
}

func startedCuCp(t *testing.T, cfg factory.CuCpConfig) (*CuCp, *mockAmf) {
	c, amf := newTestCuCp(t, cfg)
	amf.enqueue(ngap_message.BuildNGSetupResponse("amf", testPlmn, cfg.Slices))
	require.True(t, c.Start(context.Background()))
	require.True(t, isInitiating(amf.next(t), ngapType.ProcedureCodeNGSetup))
	return c, amf
}

func TestStartWithAmfAccept(t *testing.T) {
	c, amf := newTestCuCp(t, testConfig())
	amf.enqueue(ngap_message.BuildNGSetupResponse("amf", testPlmn, testConfig().Slices))

	assert.False(t, c.AmfIsConnected())
	require.True(t, c.Start(context.Background()))

	first := amf.next(t)
	assert.True(t, isInitiating(first, ngapType.ProcedureCodeNGSetup))
	assert.True(t, c.AmfIsConnected())
}

func TestStartWithAmfReject(t *testing.T) {
	c, amf := newTestCuCp(t, testConfig())
	amf.enqueue(ngap_message.BuildNGSetupFailure(
		ngap_message.BuildCause(ngapType.CausePresentMisc, ngapType.CauseMiscPresentUnspecified), nil))

	assert.False(t, c.Start(context.Background()))
	assert.False(t, c.AmfIsConnected())
	assert.Equal(t, 1, amf.nofReceived())
}

func TestStartTimesOutWithoutAnswer(t *testing.T) {
	cfg := testConfig()
	cfg.NgSetupTimeout = 50 * time.Millisecond
	c, amf := newTestCuCp(t, cfg)

	assert.False(t, c.Start(context.Background()))
	assert.False(t, c.AmfIsConnected())
	assert.Equal(t, 1, amf.nofReceived())
}

// refusingConnector fails the first refusals connection attempts.
type refusingConnector struct {
	gateway.Connector[*ngapType.NGAPPDU]
	mu       sync.Mutex
	refusals int
	attempts int
}

func (r *refusingConnector) Connect(rx gateway.RxNotifier[*ngapType.NGAPPDU]) (gateway.MessageNotifier[*ngapType.NGAPPDU], error) {
	r.mu.Lock()
	r.attempts++
	refuse := r.attempts <= r.refusals
	r.mu.Unlock()
	if refuse {
		return nil, gateway.ErrConnectionRefused
	}
	return r.Connector.Connect(rx)
}

func TestRunRetriesUnreachableAmf(t *testing.T) {
	amf := newMockAmf()
	amf.enqueue(ngap_message.BuildNGSetupResponse("amf", testPlmn, testConfig().Slices))
	conn := &refusingConnector{Connector: gateway.NewLocalConnector[*ngapType.NGAPPDU](amf), refusals: 1}
	c := New(testConfig(), conn)
	t.Cleanup(c.Stop)

	require.True(t, c.Run(context.Background()))
	assert.Equal(t, 2, conn.attempts)
	assert.True(t, c.AmfIsConnected())
}

func TestRunGivesUpOnRejectingAmf(t *testing.T) {
	c, amf := newTestCuCp(t, testConfig())
	amf.enqueue(ngap_message.BuildNGSetupFailure(
		ngap_message.BuildCause(ngapType.CausePresentMisc, ngapType.CauseMiscPresentUnspecified), nil))

	assert.False(t, c.Run(context.Background()))
	assert.Equal(t, 1, amf.nofReceived())
}

func TestF1SetupWithoutNgFails(t *testing.T) {
	c, amf := newTestCuCp(t, testConfig())
	amf.enqueue(ngap_message.BuildNGSetupFailure(
		ngap_message.BuildCause(ngapType.CausePresentMisc, ngapType.CauseMiscPresentUnspecified), nil))
	require.False(t, c.Start(context.Background()))
	amf.next(t)

	du, err := connectDu(c)
	require.NoError(t, err)
	resp := du.setup(t, 0x55, testCell(1))
	require.NotNil(t, resp.F1SetupFailure)
	assert.Equal(t, f1ap.CauseRadioNetworkNgNotConnected, resp.F1SetupFailure.Cause.Value)

	report := c.HandleMetricsReportRequest()
	require.Len(t, report.Dus, 1)
	assert.Equal(t, gnb_context.InvalidGnbDuId, report.Dus[0].Id)

	time.Sleep(quietPeriod)
	assert.Equal(t, 1, amf.nofReceived(), "no NGAP PDU after NG Setup Request")
}

func TestE1SetupWithoutNgFails(t *testing.T) {
	c, _ := newTestCuCp(t, testConfig())

	_, resp := connectCuUp(t, c, false)
	require.NotNil(t, resp.GnbCuUpE1SetupFailure)
	assert.Equal(t, e1ap.CauseRadioNetworkNgNotReady, resp.GnbCuUpE1SetupFailure.Cause.Value)
}

func TestDuplicateGnbDuId(t *testing.T) {
	c, _ := startedCuCp(t, testConfig())

	duA, err := connectDu(c)
	require.NoError(t, err)
	duB, err := connectDu(c)
	require.NoError(t, err)

	respA := duA.setup(t, 0x55, testCell(1))
	respB := duB.setup(t, 0x55, testCell(2))
	require.NotNil(t, respA.F1SetupResponse)
	assert.Equal(t, "test-gnb", respA.F1SetupResponse.GnbCuName)
	assert.Equal(t, []f1ap.NrCgi{testCell(1).NrCgi}, respA.F1SetupResponse.CellsToActivate)
	require.NotNil(t, respB.F1SetupFailure)
	assert.Equal(t, f1ap.CauseRadioNetworkDuplicateDuId, respB.F1SetupFailure.Cause.Value)
}

func TestF1SetupRejectsForeignCells(t *testing.T) {
	c, _ := startedCuCp(t, testConfig())
	du, err := connectDu(c)
	require.NoError(t, err)

	cell := testCell(1)
	cell.NrCgi.Plmn = [3]byte{0x02, 0xf8, 0x39}
	resp := du.setup(t, 1, cell)
	require.NotNil(t, resp.F1SetupFailure)
	assert.Equal(t, f1ap.CauseRadioNetworkPlmnNotServed, resp.F1SetupFailure.Cause.Value)

	cell = testCell(1)
	cell.NrCgi.NrCellId = 0x1234
	resp = du.setup(t, 1, cell)
	require.NotNil(t, resp.F1SetupFailure)
	assert.Equal(t, f1ap.CauseRadioNetworkUnknownCell, resp.F1SetupFailure.Cause.Value)
}

func TestDuCapSaturationThenChurn(t *testing.T) {
	cfg := testConfig()
	c, _ := startedCuCp(t, cfg)

	dus := make([]*mockDu, 0, cfg.MaxNofDus)
	for i := 0; i < cfg.MaxNofDus; i++ {
		du, err := connectDu(c)
		require.NoError(t, err)
		require.NotNil(t, du.setup(t, uint64(i+1), testCell(uint64(i+1))).F1SetupResponse)
		dus = append(dus, du)
	}

	_, err := connectDu(c)
	assert.ErrorIs(t, err, gateway.ErrConnectionRefused)

	dus[0].close(t)
	require.Eventually(t, func() bool {
		return len(c.HandleMetricsReportRequest().Dus) == cfg.MaxNofDus-1
	}, waitTimeout, 10*time.Millisecond)

	du, err := connectDu(c)
	require.NoError(t, err)
	assert.NotNil(t, du.setup(t, 1, testCell(1)).F1SetupResponse)
}

func TestSecondE1SetupRejected(t *testing.T) {
	c, _ := startedCuCp(t, testConfig())

	u, resp := connectCuUp(t, c, false)
	require.NotNil(t, resp.GnbCuUpE1SetupResponse)
	assert.Equal(t, "test-gnb", resp.GnbCuUpE1SetupResponse.GnbCuCpName)
	assert.EqualValues(t, 3, resp.GnbCuUpE1SetupResponse.TransactionId)

	u.tx.OnNewMessage(&e1ap.Pdu{GnbCuUpE1SetupRequest: &e1ap.GnbCuUpE1SetupRequest{TransactionId: 4, GnbCuUpId: 1}})
	again := u.next(t)
	require.NotNil(t, again.GnbCuUpE1SetupFailure)
	assert.Equal(t, e1ap.CauseRadioNetworkMultipleCuUp, again.GnbCuUpE1SetupFailure.Cause.Value)
}

func initialUlRrc(t *testing.T, duUeF1apId uint32, crnti uint16) *f1ap.Pdu {
	t.Helper()
	container, err := rrc.Encode(&rrc.RrcSetupRequest{
		UeIdentity:         0x1234,
		EstablishmentCause: rrc.EstablishmentCauseMoSignalling,
	})
	require.NoError(t, err)
	return &f1ap.Pdu{InitialUlRrcMessageTransfer: &f1ap.InitialUlRrcMessageTransfer{
		GnbDuUeF1apId:      duUeF1apId,
		NrCgi:              testCell(1).NrCgi,
		CRnti:              crnti,
		RrcContainer:       container,
		DuToCuRrcContainer: []byte{0xca, 0xfe},
	}}
}

func TestUeAttachWithoutCuUpIsRejected(t *testing.T) {
	c, amf := startedCuCp(t, testConfig())
	du, err := connectDu(c)
	require.NoError(t, err)
	require.NotNil(t, du.setup(t, 1, testCell(1)).F1SetupResponse)

	du.send(initialUlRrc(t, 0, 0x4601))

	pdu := du.next(t)
	cmd := pdu.UeContextReleaseCommand
	require.NotNil(t, cmd, "got %s", pdu.Name())
	assert.Equal(t, f1ap.SrbId0, cmd.SrbId)
	assert.EqualValues(t, 0, cmd.GnbDuUeF1apId)
	msg, err := rrc.Decode(cmd.RrcContainer)
	require.NoError(t, err)
	assert.IsType(t, &rrc.RrcReject{}, msg)

	report := c.HandleMetricsReportRequest()
	require.Len(t, report.Ues, 1)
	assert.EqualValues(t, 0x4601, report.Ues[0].Rnti)
	assert.EqualValues(t, 1, report.Ues[0].DuId)

	du.send(&f1ap.Pdu{UeContextReleaseComplete: &f1ap.UeContextReleaseComplete{
		GnbCuUeF1apId: cmd.GnbCuUeF1apId,
		GnbDuUeF1apId: cmd.GnbDuUeF1apId,
	}})
	require.Eventually(t, func() bool {
		return len(c.HandleMetricsReportRequest().Ues) == 0
	}, waitTimeout, 10*time.Millisecond)

	assert.Equal(t, 1, amf.nofReceived(), "no NGAP PDU for a rejected UE")
}

func TestDuplicateInitialUlRrcIsDropped(t *testing.T) {
	c, _ := startedCuCp(t, testConfig())
	du, err := connectDu(c)
	require.NoError(t, err)
	require.NotNil(t, du.setup(t, 1, testCell(1)).F1SetupResponse)

	du.send(initialUlRrc(t, 0, 0x4601))
	du.next(t)
	du.send(initialUlRrc(t, 1, 0x4601))

	time.Sleep(quietPeriod)
	assert.Len(t, c.HandleMetricsReportRequest().Ues, 1)
	assert.Empty(t, du.rxCh)
}

func TestOverloadedAmfBlocksNewUes(t *testing.T) {
	c, _ := startedCuCp(t, testConfig())
	du, err := connectDu(c)
	require.NoError(t, err)
	require.NotNil(t, du.setup(t, 1, testCell(1)).F1SetupResponse)

	require.True(t, c.runSync(func() { c.ctx.Amf.StartOverload(nil, nil, nil) }))
	du.send(initialUlRrc(t, 0, 0x4601))
	time.Sleep(quietPeriod)
	assert.Empty(t, c.HandleMetricsReportRequest().Ues)
	assert.Empty(t, du.rxCh)

	require.True(t, c.runSync(func() { c.ctx.Amf.StopOverload() }))
	du.send(initialUlRrc(t, 0, 0x4601))
	require.NotNil(t, du.next(t).UeContextReleaseCommand, "admitted and rejected for the missing CU-UP")
}

// attachUe runs RRC Setup and the Initial UE Message for one UE and returns
// its RAN UE NGAP id and gNB-CU UE F1AP id.
func attachUe(t *testing.T, du *mockDu, amf *mockAmf, crnti uint16, nas []byte) (int64, uint32) {
	t.Helper()
	du.send(initialUlRrc(t, uint32(crnti), crnti))
	pdu := du.next(t)
	dl := pdu.DlRrcMessageTransfer
	require.NotNil(t, dl, "got %s", pdu.Name())
	assert.Equal(t, f1ap.SrbId0, dl.SrbId)
	msg, err := rrc.Decode(dl.RrcContainer)
	require.NoError(t, err)
	require.IsType(t, &rrc.RrcSetup{}, msg)
	assert.Equal(t, []byte{0xca, 0xfe}, msg.(*rrc.RrcSetup).MasterCellGroup)

	complete, err := rrc.Encode(&rrc.RrcSetupComplete{TransactionId: msg.(*rrc.RrcSetup).TransactionId, DedicatedNasMessage: nas})
	require.NoError(t, err)
	du.send(&f1ap.Pdu{UlRrcMessageTransfer: &f1ap.UlRrcMessageTransfer{
		GnbCuUeF1apId: dl.GnbCuUeF1apId,
		GnbDuUeF1apId: dl.GnbDuUeF1apId,
		SrbId:         f1ap.SrbId1,
		RrcContainer:  complete,
	}})
	return ranUeNgapIdOf(t, amf.next(t)), dl.GnbCuUeF1apId
}

func TestUeAttachAndAmfRelease(t *testing.T) {
	c, amf := startedCuCp(t, testConfig())
	cuup, resp := connectCuUp(t, c, false)
	require.NotNil(t, resp.GnbCuUpE1SetupResponse)
	du, err := connectDu(c)
	require.NoError(t, err)
	require.NotNil(t, du.setup(t, 1, testCell(1)).F1SetupResponse)

	ranId, cuUeF1apId := attachUe(t, du, amf, 0x4601, []byte{0x7e, 0x00, 0x41})

	// Downlink NAS reaches the UE on SRB1.
	amf.send(ngap_message.BuildDownlinkNASTransport(testAmfUeNgapId, ranId, []byte{0x7e, 0x00, 0x56}))
	pdu := du.next(t)
	require.NotNil(t, pdu.DlRrcMessageTransfer, "got %s", pdu.Name())
	assert.Equal(t, f1ap.SrbId1, pdu.DlRrcMessageTransfer.SrbId)
	msg, err := rrc.Decode(pdu.DlRrcMessageTransfer.RrcContainer)
	require.NoError(t, err)
	require.IsType(t, &rrc.DlInformationTransfer{}, msg)
	assert.Equal(t, []byte{0x7e, 0x00, 0x56}, msg.(*rrc.DlInformationTransfer).DedicatedNasMessage)

	// Uplink NAS is forwarded with the AMF id learnt from the DL NAS.
	ul, err := rrc.Encode(&rrc.UlInformationTransfer{DedicatedNasMessage: []byte{0x7e, 0x00, 0x57}})
	require.NoError(t, err)
	du.send(&f1ap.Pdu{UlRrcMessageTransfer: &f1ap.UlRrcMessageTransfer{
		GnbCuUeF1apId: cuUeF1apId, SrbId: f1ap.SrbId1, RrcContainer: ul,
	}})
	assert.True(t, isInitiating(amf.next(t), ngapType.ProcedureCodeUplinkNASTransport))

	// User plane.
	idx := gnb_context.UeIndex(ranId)
	setup, err := c.SetupBearerContext(context.Background(), idx, []e1ap.PduSessionToSetup{{
		PduSessionId:  1,
		Snssai:        e1ap.Snssai{Sst: 1, Sd: 0x010203},
		NgUlUpTnlInfo: e1ap.UpTnlInfo{Addr: "10.0.0.1", Port: factory.GTPU_PORT, Teid: 0x99},
		Drbs:          []e1ap.DrbToSetup{{DrbId: 1, QosFlows: []uint8{1}}},
	}})
	require.NoError(t, err)
	require.Len(t, setup.PduSessions, 1)
	assert.Equal(t, 1, c.HandleMetricsReportRequest().NofCuUp)
	assert.NotNil(t, cuup.next(t).BearerContextSetupRequest)

	mod, err := c.ModifyBearerContext(context.Background(), idx, []e1ap.DrbToModify{{
		DrbId: 1, DlUpTnlInfo: e1ap.UpTnlInfo{Addr: "127.0.3.1", Port: factory.GTPU_PORT, Teid: 0x30},
	}})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1}, mod.DrbsModified)
	assert.NotNil(t, cuup.next(t).BearerContextModificationRequest)

	// The AMF releases the UE: bearer context first, then the DU.
	amf.send(ngap_message.BuildUEContextReleaseCommand(testAmfUeNgapId, ranId,
		ngap_message.BuildCause(ngapType.CausePresentNas, ngapType.CauseNasPresentNormalRelease)))
	assert.NotNil(t, cuup.next(t).BearerContextReleaseCommand)
	pdu = du.next(t)
	cmd := pdu.UeContextReleaseCommand
	require.NotNil(t, cmd, "got %s", pdu.Name())
	assert.Equal(t, f1ap.SrbId1, cmd.SrbId)
	msg, err = rrc.Decode(cmd.RrcContainer)
	require.NoError(t, err)
	assert.IsType(t, &rrc.RrcRelease{}, msg)

	du.send(&f1ap.Pdu{UeContextReleaseComplete: &f1ap.UeContextReleaseComplete{
		GnbCuUeF1apId: cmd.GnbCuUeF1apId, GnbDuUeF1apId: cmd.GnbDuUeF1apId,
	}})
	assert.True(t, isSuccessful(amf.next(t), ngapType.ProcedureCodeUEContextRelease))
	require.Eventually(t, func() bool {
		return len(c.HandleMetricsReportRequest().Ues) == 0
	}, waitTimeout, 10*time.Millisecond)
}

func TestBearerContextSetupTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.ProcedureTimeout = 50 * time.Millisecond
	c, amf := startedCuCp(t, cfg)
	_, resp := connectCuUp(t, c, true)
	require.NotNil(t, resp.GnbCuUpE1SetupResponse)
	du, err := connectDu(c)
	require.NoError(t, err)
	require.NotNil(t, du.setup(t, 1, testCell(1)).F1SetupResponse)
	ranId, _ := attachUe(t, du, amf, 0x4602, []byte{0x7e})

	_, err = c.SetupBearerContext(context.Background(), gnb_context.UeIndex(ranId),
		[]e1ap.PduSessionToSetup{{PduSessionId: 1}})
	assert.ErrorIs(t, err, transaction.ErrTimeout)
}

func TestBearerContextForUnknownUe(t *testing.T) {
	c, _ := startedCuCp(t, testConfig())
	_, err := c.SetupBearerContext(context.Background(), gnb_context.UeIndex(42), nil)
	assert.ErrorIs(t, err, gnb_context.ErrUnknownUe)
}

func TestDuLossReapsUes(t *testing.T) {
	c, amf := startedCuCp(t, testConfig())
	_, resp := connectCuUp(t, c, false)
	require.NotNil(t, resp.GnbCuUpE1SetupResponse)
	du, err := connectDu(c)
	require.NoError(t, err)
	require.NotNil(t, du.setup(t, 1, testCell(1)).F1SetupResponse)

	ranId, _ := attachUe(t, du, amf, 0x4603, []byte{0x7e})
	amf.send(ngap_message.BuildDownlinkNASTransport(testAmfUeNgapId, ranId, []byte{0x7e}))
	du.next(t)
	require.Len(t, c.HandleMetricsReportRequest().Ues, 1)

	du.close(t)
	pdu := amf.next(t)
	assert.True(t, isInitiating(pdu, ngapType.ProcedureCodeUEContextReleaseRequest))
	require.Eventually(t, func() bool {
		report := c.HandleMetricsReportRequest()
		return len(report.Ues) == 0 && len(report.Dus) == 0
	}, waitTimeout, 10*time.Millisecond)
}

func TestNgSetupFailureWithTimeToWaitRetries(t *testing.T) {
	c, amf := newTestCuCp(t, testConfig())
	ttw := aper.Enumerated(ngapType.TimeToWaitPresentV1s)
	amf.enqueue(ngap_message.BuildNGSetupFailure(
		ngap_message.BuildCause(ngapType.CausePresentMisc, ngapType.CauseMiscPresentControlProcessingOverload), &ttw))
	amf.enqueue(ngap_message.BuildNGSetupResponse("amf", testPlmn, testConfig().Slices))

	assert.False(t, c.Start(context.Background()))
	require.Eventually(t, c.AmfIsConnected, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, amf.nofReceived())
}

func TestStopRefusesNewAssociations(t *testing.T) {
	c, _ := startedCuCp(t, testConfig())
	c.Stop()

	_, err := connectDu(c)
	assert.Error(t, err)
}
