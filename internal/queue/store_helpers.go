package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const packageColumns = "id, name, suffix, status, priority, category, create_subfolder, cancel_requested"

const transferColumns = "id, package_id, name, status, priority, category, create_subfolder, error_string, url, request_method, request_headers_json, post_data, download_path, file_name, custom_command, custom_command_override, use_plugins, plugin_id, plugin_icon_path, bytes_transferred, size, interaction_json, wait_until"

type rowScanner interface{ Scan(dest ...any) error }

func scanPackage(scanner rowScanner) (Record, error) {
	var (
		rec             Record
		suffix          sql.NullString
		status          string
		priority        int
		category        sql.NullString
		createSubfolder int
		cancelRequested int
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&suffix,
		&status,
		&priority,
		&category,
		&createSubfolder,
		&cancelRequested,
	); err != nil {
		return Record{}, err
	}
	rec.Kind = KindPackage.String()
	rec.Suffix = suffix.String
	rec.Status = Status(status)
	rec.Priority = Priority(priority)
	rec.Category = category.String
	rec.CreateSubfolder = createSubfolder != 0
	rec.CancelRequested = cancelRequested != 0
	return rec, nil
}

func scanTransfer(scanner rowScanner) (Record, error) {
	var (
		rec             Record
		status          string
		priority        int
		category        sql.NullString
		createSubfolder int
		errorString     sql.NullString
		headersJSON     sql.NullString
		postData        sql.NullString
		downloadPath    sql.NullString
		fileName        sql.NullString
		customCommand   sql.NullString
		commandOverride int
		usePlugins      int
		pluginID        sql.NullString
		pluginIconPath  sql.NullString
		interactionJSON sql.NullString
		waitUntilRaw    sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.ParentID,
		&rec.Name,
		&status,
		&priority,
		&category,
		&createSubfolder,
		&errorString,
		&rec.URL,
		&rec.RequestMethod,
		&headersJSON,
		&postData,
		&downloadPath,
		&fileName,
		&customCommand,
		&commandOverride,
		&usePlugins,
		&pluginID,
		&pluginIconPath,
		&rec.BytesTransferred,
		&rec.Size,
		&interactionJSON,
		&waitUntilRaw,
	); err != nil {
		return Record{}, err
	}
	rec.Kind = KindTransfer.String()
	rec.Status = Status(status)
	rec.Priority = Priority(priority)
	rec.Category = category.String
	rec.CreateSubfolder = createSubfolder != 0
	rec.ErrorString = errorString.String
	rec.PostData = postData.String
	rec.DownloadPath = downloadPath.String
	rec.FileName = fileName.String
	rec.CustomCommand = customCommand.String
	rec.CustomCommandOverride = commandOverride != 0
	rec.UsePlugins = usePlugins != 0
	rec.PluginID = pluginID.String
	rec.PluginIconPath = pluginIconPath.String

	if headersJSON.String != "" {
		if err := json.Unmarshal([]byte(headersJSON.String), &rec.RequestHeaders); err != nil {
			return Record{}, err
		}
	}
	if interactionJSON.String != "" {
		var interaction Interaction
		if err := json.Unmarshal([]byte(interactionJSON.String), &interaction); err != nil {
			return Record{}, err
		}
		rec.Interaction = &interaction
	}
	if wait, err := parseTimeString(waitUntilRaw.String); err == nil {
		rec.WaitUntil = &wait
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableJSON(value any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
