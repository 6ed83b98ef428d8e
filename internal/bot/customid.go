package bot

import (
	"errors"
	"strconv"
	"strings"
)

const (
	idEventSelect    = "event_select"
	idSubConfirm     = "sub_confirm"
	idSubScreenshot  = "sub_screenshot"
	idSubCancel      = "sub_cancel"
	idModMultiplier  = "mod_mult"
	idModApprove     = "mod_approve"
	idModRejectModal = "mod_reject_modal"
	idModReject      = "mod_reject"
	idShopBuy        = "shop_buy"
	idShopDone       = "shop_done"
	idShopReject     = "shop_reject"

	fieldRejectReason = "reason"
)

var errBadCustomID = errors.New("malformed custom id")

func customID(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}

func splitCustomID(id string) (string, []string) {
	parts := strings.Split(id, ":")
	return parts[0], parts[1:]
}

func parseSubmissionRef(parts []string) (int64, error) {
	if len(parts) < 1 {
		return 0, errBadCustomID
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadCustomID
	}
	return id, nil
}

// parseApproveRef reads "<submission id>:<multiplier>".
func parseApproveRef(parts []string) (int64, float64, error) {
	if len(parts) != 2 {
		return 0, 0, errBadCustomID
	}
	id, err := parseSubmissionRef(parts[:1])
	if err != nil {
		return 0, 0, err
	}
	multiplier, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || multiplier <= 0 {
		return 0, 0, errBadCustomID
	}
	return id, multiplier, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatMultiplier(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}
