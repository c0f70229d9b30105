package controllers

import (
	"strconv"
	"time"

	"github.com/beevik/etree"

	"personalbank/models"
)

// BuildStatement собирает XML-выписку по счету
func BuildStatement(account *models.Account, records []models.Transaction) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("statement")
	root.CreateAttr("account_number", account.AccountNumber)
	root.CreateAttr("generated_at", time.Now().UTC().Format(time.RFC3339))

	holder := root.CreateElement("holder")
	holder.CreateElement("name").SetText(account.Name)
	holder.CreateElement("city").SetText(account.City)
	holder.CreateElement("status").SetText(string(account.Status))

	root.CreateElement("balance").SetText(account.Balance.StringFixed(2))

	list := root.CreateElement("transactions")
	list.CreateAttr("count", strconv.Itoa(len(records)))
	for _, record := range records {
		el := list.CreateElement("transaction")
		el.CreateAttr("id", strconv.FormatUint(record.ID, 10))
		el.CreateAttr("type", string(record.Type))
		el.CreateAttr("date", record.CreatedAt.UTC().Format(time.RFC3339))
		el.CreateElement("amount").SetText(record.Amount.StringFixed(2))
		el.CreateElement("balance_after").SetText(record.BalanceAfter.StringFixed(2))

		if record.Type == models.TransactionTypeTransfer {
			transfer := el.CreateElement("transfer")
			if record.TransferID != nil {
				transfer.CreateAttr("id", *record.TransferID)
			}
			transfer.CreateAttr("direction", string(record.Direction))
			transfer.CreateAttr("counterparty", record.Counterparty)
		}
	}

	doc.Indent(2)
	return doc
}
