// Package influxdb records Nest device telemetry in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management and a small
// set of writers:
//
//	nest_device        kind, device_id, attr    value (float)
//	nest_availability  kind, device_id, reason  available (bool)
//	nest_alarm         device_id, alarm         active (bool)
//
// Only temperatures, humidity and camera streaming are written as device
// metrics; RecordDeviceData filters everything else.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordDeviceData("thermostats", "t1", "ambient_temperature_c", 19.5, time.Now())
//
// Writes are non-blocking; failures arrive on the SetOnError callback.
package influxdb
